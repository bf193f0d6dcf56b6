// Package main provides genecode, a tool for inspecting creature genetic
// codes and the fossil hall of fame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cory-johannsen/planeta/internal/config"
	"github.com/cory-johannsen/planeta/internal/game/creature"
	"github.com/cory-johannsen/planeta/internal/game/fossil"
	"github.com/cory-johannsen/planeta/internal/storage/postgres"
)

const usage = `usage:
  genecode decode <code>
  genecode hall [-csv path | -db -config path] [-n N]`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "decode":
		return decode(args[1:], out)
	case "hall":
		return hall(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// decode prints the best-effort full record behind a compact code as YAML.
func decode(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	v, err := creature.ParseCompactCode(args[0])
	if err != nil {
		return err
	}
	data, err := creature.MarshalRecord(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# liveness: %s\n", v.Liveness())
	_, err = out.Write(data)
	return err
}

// hall prints the top fossils as CSV, from a CSV record or the database.
func hall(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hall", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	csvPath := fs.String("csv", "fossils.csv", "fossil CSV record to read")
	useDB := fs.Bool("db", false, "read the fossil table instead of the CSV record")
	configPath := fs.String("config", "configs/dev.yaml", "configuration file for -db")
	n := fs.Int("n", 10, "number of fossils to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be > 0, got %d", *n)
	}

	var top []fossil.Fossil
	if *useDB {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		top, err = postgres.NewFossilRepository(pool.DB()).Top(ctx, *n)
		if err != nil {
			return err
		}
	} else {
		all, err := fossil.ReadCSV(*csvPath)
		if err != nil {
			return err
		}
		top = fossil.HallOfFame(all, *n)
	}
	return fossil.WriteCSV(out, top)
}
