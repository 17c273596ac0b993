// cmd/isaac/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kr/pretty"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"

	"isaac"
	"isaac/internal/config"
	"isaac/internal/dispatch"
	"isaac/internal/driver/simulate"
	"isaac/internal/profile"
)

const version = "0.1.0"

var buildDate = time.Now()

var commandAliases = map[string]string{
	"i": "inspect",
	"t": "tune",
	"p": "profile",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		showVersion()
	case "inspect":
		if err := runInspect(args[1:]); err != nil {
			log.Fatalf("isaac inspect: %v", err)
		}
	case "tune":
		if err := runTune(args[1:]); err != nil {
			log.Fatalf("isaac tune: %v", err)
		}
	case "profile":
		if err := runProfile(args[1:]); err != nil {
			log.Fatalf("isaac profile: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("isaac - JIT dispatch engine for dense linear algebra on accelerators")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  isaac inspect             Print the resolved runtime configuration (alias: i)")
	fmt.Println("  isaac tune                Register candidates against the simulated backend; tuning itself needs a live tree (alias: t)")
	fmt.Println("  isaac profile             Dump the loaded profile database (alias: p)")
	fmt.Println("  isaac version             Print version and build information")
}

func showVersion() {
	fmt.Printf("isaac %s\n", version)
	layout := "%Y-%m-%d %H:%M:%S"
	fmt.Printf("built:  %s\n", strftime.Format(layout, buildDate))
}

// colorize returns s unchanged when stdout is not a real terminal (piped
// into a file, a CI log, another process), the same defensive check the
// teacher's formatter/debugger packages make before emitting ANSI codes.
func colorize(s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

func runInspect(_ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Println(colorize("resolved configuration:"))
	fmt.Printf("%# v\n", pretty.Formatter(cfg))
	return nil
}

func runProfile(_ []string) error {
	db := profile.New()
	fmt.Println(colorize("built-in profile database:"))
	fmt.Printf("%# v\n", pretty.Formatter(db))
	return nil
}

func runTune(_ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db := profile.New()
	if err := db.LoadOverride(cfg.ProfileOverridePath); err != nil {
		return err
	}

	dispatcher := dispatch.New(cfg.Backend, db)
	dev := simulate.NewDevice(cfg.Backend)
	if err := isaac.Register(dispatcher, db, dev.Info()); err != nil {
		return err
	}

	fmt.Println(colorize("tuning requires a live tree; build one with the isaac package and call Launcher.Execute with dispatch.Options{Tune: true}."))
	fmt.Printf("%# v\n", pretty.Formatter(dev.Info()))
	return nil
}
