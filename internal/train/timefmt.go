package train

import (
	"fmt"
	"time"
)

// FormatDuration renders d as HHhMMmSSs.
func FormatDuration(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02dh%02dm%02ds", s/3600, s%3600/60, s%60)
}
