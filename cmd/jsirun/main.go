package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dop251/goja"

	"github.com/wippyai/jsibridge/config"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to a script to run")
		evalSrc     = flag.String("eval", "", "Script source to run")
		configFile  = flag.String("config", "", "Path to a YAML config file")
		guestModule = flag.String("guest", "", "Wasm module backing native.alloc (overrides config)")
		interactive = flag.Bool("i", false, "Interactive console")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *guestModule != "" {
		cfg.Guest.Module = *guestModule
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *scriptFile == "" && *evalSrc == "" {
		fmt.Fprintln(os.Stderr, "Usage: jsirun -script <file.js> [-config jsirun.yaml] [-guest heap.wasm]")
		fmt.Fprintln(os.Stderr, "       jsirun -eval '<source>'")
		fmt.Fprintln(os.Stderr, "       jsirun -i  (interactive console)")
		os.Exit(1)
	}

	name, src := "<eval>", *evalSrc
	if *scriptFile != "" {
		data, err := os.ReadFile(*scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read script: %v\n", err)
			os.Exit(1)
		}
		name, src = *scriptFile, string(data)
	}

	if err := run(cfg, name, src); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg config.Config, name, src string) error {
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var runErr error
	s.loop.Run(func(vm *goja.Runtime) {
		if runErr = s.setup(vm); runErr != nil {
			return
		}
		v, err := vm.RunScript(name, src)
		if err != nil {
			runErr = fmt.Errorf("run %s: %w", name, err)
			return
		}
		if !goja.IsUndefined(v) {
			fmt.Println(s.format(v))
		}
	})
	if runErr != nil {
		return runErr
	}

	s.collect()
	return s.taskFailure()
}
