package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"eris/internal/archive"
	"eris/internal/store"
)

func exportCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	output := fs.String("o", "", "Write the archive to this file instead of stdout")
	fs.Parse(args)

	blocks, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer blocks.Close()

	src := blocks
	if c, ok := src.(*store.Cache); ok {
		src = c.Unwrap()
	}
	lister, ok := src.(store.Lister)
	if !ok {
		return fmt.Errorf("this store kind cannot enumerate its blocks")
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	count, err := archive.Export(ctx, lister, out)
	if err != nil {
		return err
	}
	log.Printf("exported %d blocks", count)
	return nil
}

func importCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	fs.Parse(args)

	blocks, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer blocks.Close()

	var in io.Reader = os.Stdin
	if fs.NArg() > 0 {
		file, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	count, err := archive.Import(ctx, blocks, in)
	if err != nil {
		return err
	}
	log.Printf("imported %d blocks", count)
	return nil
}
