// Package main provides the pkt distillation trainer CLI.
//
//	pkt -config run.yaml -epochs 50 -lambda_pkt 500
//	pkt version
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/born-ml/pkt/internal/config"
	"github.com/born-ml/pkt/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("pkt %s\n", version)
		return
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if err := run(os.Args[1:], logger); err != nil {
		logger.Fatal(err)
	}
}

func run(args []string, logger *log.Logger) error {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	logger.Printf("configuration:\n%s", cfg)

	runner, err := train.Setup(cfg, logger)
	if err != nil {
		return err
	}
	_, err = runner.Run()
	return err
}

// parseConfig builds the run configuration: defaults, then the YAML file
// named by -config, then any flag given explicitly.
func parseConfig(args []string, output io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("pkt", flag.ContinueOnError)
	fs.SetOutput(output)

	def := config.Default()
	path := fs.String("config", "", "YAML configuration file")
	values := struct {
		saveRoot, imgRoot, sInit, tModel       string
		dataName, tName, sName, embedding      string
		printFreq, epochs, batchSize           int
		numClass, maxSamples, workers          int
		lr, momentum, weightDecay, lambda, eps float64
		nesterov                               bool
		seed                                   int64
	}{}

	fs.StringVar(&values.saveRoot, "save_root", def.SaveRoot, "directory for checkpoints")
	fs.StringVar(&values.imgRoot, "img_root", def.ImgRoot, "dataset root")
	fs.StringVar(&values.sInit, "s_init", def.SInit, "student initialization model file")
	fs.StringVar(&values.tModel, "t_model", def.TModel, "pretrained teacher model file")
	fs.IntVar(&values.printFreq, "print_freq", def.PrintFreq, "batches between progress lines")
	fs.IntVar(&values.epochs, "epochs", def.Epochs, "number of epochs")
	fs.IntVar(&values.batchSize, "batch_size", def.BatchSize, "mini-batch size")
	fs.Float64Var(&values.lr, "lr", def.LR, "initial learning rate")
	fs.Float64Var(&values.momentum, "momentum", def.Momentum, "SGD momentum")
	fs.Float64Var(&values.weightDecay, "weight_decay", def.WeightDecay, "weight decay")
	fs.BoolVar(&values.nesterov, "nesterov", def.Nesterov, "use Nesterov momentum")
	fs.IntVar(&values.numClass, "num_class", def.NumClass, "number of classes")
	fs.StringVar(&values.dataName, "data_name", def.DataName, "dataset: cifar10 or cifar100")
	fs.StringVar(&values.tName, "t_name", def.TName, "teacher network")
	fs.StringVar(&values.sName, "s_name", def.SName, "student network")
	fs.Float64Var(&values.lambda, "lambda_pkt", def.LambdaPKT, "weight of the PKT loss")
	fs.Float64Var(&values.eps, "eps", def.Eps, "PKT numerical guard")
	fs.Int64Var(&values.seed, "seed", def.Seed, "random seed")
	fs.StringVar(&values.embedding, "embedding", def.Embedding, "embedding source: logits or penultimate")
	fs.IntVar(&values.maxSamples, "max_samples", def.MaxSamples, "limit samples per split (0 = all)")
	fs.IntVar(&values.workers, "workers", def.Workers, "augmentation workers")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := def
	if *path != "" {
		loaded, err := config.Load(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var o config.Overrides
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "save_root":
			o.SaveRoot = &values.saveRoot
		case "img_root":
			o.ImgRoot = &values.imgRoot
		case "s_init":
			o.SInit = &values.sInit
		case "t_model":
			o.TModel = &values.tModel
		case "print_freq":
			o.PrintFreq = &values.printFreq
		case "epochs":
			o.Epochs = &values.epochs
		case "batch_size":
			o.BatchSize = &values.batchSize
		case "lr":
			o.LR = &values.lr
		case "momentum":
			o.Momentum = &values.momentum
		case "weight_decay":
			o.WeightDecay = &values.weightDecay
		case "nesterov":
			o.Nesterov = &values.nesterov
		case "num_class":
			o.NumClass = &values.numClass
		case "data_name":
			o.DataName = &values.dataName
		case "t_name":
			o.TName = &values.tName
		case "s_name":
			o.SName = &values.sName
		case "lambda_pkt":
			o.LambdaPKT = &values.lambda
		case "eps":
			o.Eps = &values.eps
		case "seed":
			o.Seed = &values.seed
		case "embedding":
			o.Embedding = &values.embedding
		case "max_samples":
			o.MaxSamples = &values.maxSamples
		case "workers":
			o.Workers = &values.workers
		}
	})
	cfg.ApplyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
