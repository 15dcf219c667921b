// Package serialization implements the .born checkpoint container.
//
//	Layout (version 2):
//	  0x00 [4]  magic "BORN"
//	  0x04 [4]  version (uint32 LE)
//	  0x08 [4]  flags (uint32 LE)
//	  0x0C [4]  reserved
//	  0x10 [8]  header size (uint64 LE)
//	  0x18 [8]  data size (uint64 LE)
//	  0x20 [32] SHA-256 of the data section
//	  0x40      JSON header
//	  ...       zero padding to a 64-byte boundary
//	  ...       tensor data, in header order
//
// Files are written to a temporary sibling and renamed into place, so a
// crashed write never leaves a truncated checkpoint under the final name.
//
//	err := serialization.WriteFile("pkt_mlp-l_mlp-s_001.born", stateDict, serialization.Header{
//	    Checkpoint: &serialization.CheckpointMeta{Epoch: 1},
//	})
//
//	f, err := serialization.ReadFile("pkt_mlp-l_mlp-s_001.born")
//	weight := f.Tensors["snet.fc1.weight"]
package serialization
