// Command eris encodes and decodes content against a block store and
// manages the local name registry.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"eris/internal/config"
	"eris/internal/eris"
	"eris/internal/namespace"
	"eris/internal/store"
)

const usage = `usage: eris <command> [flags] [args]

commands:
  put     encode a file (or stdin) and print its URN
  get     decode a URN or name to stdout (or a file)
  info    print the parts of a capability
  tag     bind a name to a URN in the name registry
  tags    list registered names
  untag   remove a name from the registry
  export  write all blocks of a store to an archive
  import  read an archive of blocks into a store

run 'eris <command> -h' for flags.
`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "put":
		err = putCmd(ctx, args)
	case "get":
		err = getCmd(ctx, args)
	case "info":
		err = infoCmd(args)
	case "tag":
		err = tagCmd(ctx, args)
	case "tags":
		err = tagsCmd(args)
	case "untag":
		err = untagCmd(args)
	case "export":
		err = exportCmd(ctx, args)
	case "import":
		err = importCmd(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("eris %s: %v", cmd, err)
	}
}

// storeFlags selects the block store a command works against, either
// from a configuration file or directly.
type storeFlags struct {
	config string
	dir    string
	url    string
	cache  int
}

func (f *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&f.dir, "dir", "", "Directory of a local block store")
	fs.StringVar(&f.url, "url", "", "URL of a block store service")
	fs.IntVar(&f.cache, "cache", 0, "Blocks to cache in memory in front of the store")
}

func (f *storeFlags) open(ctx context.Context) (eris.Store, error) {
	switch {
	case f.config != "":
		cfg, err := config.Load(f.config)
		if err != nil {
			return nil, err
		}
		return store.FromConfig(ctx, cfg.Store)
	case f.dir != "":
		return store.FromConfig(ctx, config.StoreConfig{Kind: "badger", Path: f.dir, CacheBlocks: f.cache})
	case f.url != "":
		return store.FromConfig(ctx, config.StoreConfig{Kind: "http", URL: f.url, CacheBlocks: f.cache})
	default:
		return nil, fmt.Errorf("one of -config, -dir or -url is required")
	}
}

func openNames(path string) (namespace.Namespace, error) {
	if path == "" {
		return nil, fmt.Errorf("-names is required")
	}
	return namespace.NewFileSystemNamespace(path, 0)
}

// parseBlockSize accepts 1k and 32k spellings; auto picks by content
// size, small content keeping the small block size.
func parseBlockSize(s string, contentSize int64) (eris.BlockSize, error) {
	switch strings.ToLower(s) {
	case "1k", "1kib", "1024":
		return eris.BlockSize1KiB, nil
	case "32k", "32kib", "32768":
		return eris.BlockSize32KiB, nil
	case "auto":
		if contentSize >= 0 && contentSize <= 16*1024 {
			return eris.BlockSize1KiB, nil
		}
		return eris.BlockSize32KiB, nil
	default:
		return 0, fmt.Errorf("invalid block size %q", s)
	}
}

func parseSecret(s string) (eris.Secret, error) {
	var secret eris.Secret
	switch s {
	case "":
		return secret, nil
	case "random":
		if _, err := rand.Read(secret[:]); err != nil {
			return secret, err
		}
		return secret, nil
	default:
		raw, err := hex.DecodeString(s)
		if err != nil || len(raw) != eris.SecretSize {
			return secret, fmt.Errorf("secret must be %d hex-encoded bytes", eris.SecretSize)
		}
		copy(secret[:], raw)
		return secret, nil
	}
}

func putCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	blockSize := fs.String("block-size", "auto", "Block size: 1k, 32k or auto")
	secretArg := fs.String("secret", "", "Convergence secret: 64 hex characters, or 'random'")
	tag := fs.String("tag", "", "Also bind this name to the new URN")
	names := fs.String("names", "", "Directory of the name registry (with -tag)")
	fs.Parse(args)

	var in io.Reader = os.Stdin
	contentSize := int64(-1)
	if fs.NArg() > 0 {
		file, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer file.Close()
		if info, err := file.Stat(); err == nil && info.Mode().IsRegular() {
			contentSize = info.Size()
		}
		in = file
	}

	bs, err := parseBlockSize(*blockSize, contentSize)
	if err != nil {
		return err
	}
	secret, err := parseSecret(*secretArg)
	if err != nil {
		return err
	}

	blocks, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer blocks.Close()

	counted := &countingReader{r: in}
	c, err := eris.Encode(ctx, blocks, counted, bs, secret)
	if err != nil {
		return err
	}

	if *tag != "" {
		ns, err := openNames(*names)
		if err != nil {
			return err
		}
		defer ns.Close()
		entry := namespace.Entry{URN: c.URN(), Length: counted.n, Updated: time.Now().UTC()}
		if err := ns.Set(*tag, entry); err != nil {
			return err
		}
	}

	fmt.Println(c.URN())
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// resolve turns a URN or registered name into a capability.
func resolve(arg, names string) (eris.Capability, error) {
	if c, err := eris.ParseURN(arg); err == nil {
		return c, nil
	} else if strings.HasPrefix(arg, "urn:") {
		return eris.Capability{}, err
	}
	if names == "" {
		return eris.Capability{}, fmt.Errorf("%q is not a URN and no -names registry was given", arg)
	}
	ns, err := openNames(names)
	if err != nil {
		return eris.Capability{}, err
	}
	defer ns.Close()
	entry, err := ns.Get(arg)
	if err != nil {
		return eris.Capability{}, err
	}
	return entry.Capability()
}

func getCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	names := fs.String("names", "", "Directory of the name registry, for fetching by name")
	output := fs.String("o", "", "Write content to this file instead of stdout")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("expected one URN or name argument")
	}
	c, err := resolve(fs.Arg(0), *names)
	if err != nil {
		return err
	}

	blocks, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer blocks.Close()

	var out io.Writer = os.Stdout
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	_, err = eris.DecodeTo(ctx, blocks, c, out)
	return err
}

func infoCmd(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("expected one URN argument")
	}
	c, err := eris.ParseURN(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("urn:        %s\n", c.URN())
	fmt.Printf("block size: %s\n", c.BlockSize)
	fmt.Printf("level:      %d\n", c.Level)
	fmt.Printf("reference:  %s\n", c.Root.Reference())
	fmt.Printf("key:        %s\n", c.Root.Key())
	return nil
}

func tagCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tag", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs)
	names := fs.String("names", "", "Directory of the name registry")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("expected name and URN arguments")
	}
	name, urn := fs.Arg(0), fs.Arg(1)
	c, err := eris.ParseURN(urn)
	if err != nil {
		return err
	}

	// The registry records the content length so the filesystem
	// gateways can report sizes without decoding.
	blocks, err := sf.open(ctx)
	if err != nil {
		return err
	}
	defer blocks.Close()
	r, err := eris.NewReader(blocks, c)
	if err != nil {
		return err
	}
	length, err := r.Length(ctx)
	if err != nil {
		return err
	}

	ns, err := openNames(*names)
	if err != nil {
		return err
	}
	defer ns.Close()
	return ns.Set(name, namespace.Entry{URN: c.URN(), Length: length, Updated: time.Now().UTC()})
}

func tagsCmd(args []string) error {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	names := fs.String("names", "", "Directory of the name registry")
	fs.Parse(args)

	ns, err := openNames(*names)
	if err != nil {
		return err
	}
	defer ns.Close()

	named, err := ns.List()
	if err != nil {
		return err
	}
	for _, n := range named {
		fmt.Printf("%s\t%d\t%s\n", n.Name, n.Length, n.URN)
	}
	return nil
}

func untagCmd(args []string) error {
	fs := flag.NewFlagSet("untag", flag.ExitOnError)
	names := fs.String("names", "", "Directory of the name registry")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("expected one name argument")
	}
	ns, err := openNames(*names)
	if err != nil {
		return err
	}
	defer ns.Close()
	return ns.Remove(fs.Arg(0))
}
