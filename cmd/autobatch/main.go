package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tigerroll/autobatch/cmd/autobatch/app"
)

// propertyFlags は繰り返し指定できる -set フラグです。
type propertyFlags []string

func (p *propertyFlags) String() string { return strings.Join(*p, ",") }

func (p *propertyFlags) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	var (
		opts app.Options
		sets propertyFlags
	)
	flag.StringVar(&opts.ConfigPath, "config", "", "application YAML path (defaults are used when empty)")
	flag.StringVar(&opts.EnvFilePath, "env", os.Getenv("ENV_FILE_PATH"), ".env file path")
	flag.Var(&sets, "set", "property override in key=value form (repeatable)")
	flag.Parse()
	opts.Overrides = sets

	// SIGINT/SIGTERM はチャンクの区切りでジョブを停止させます。
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := app.RunApplication(ctx, opts)
	stop()
	os.Exit(exitCode)
}
