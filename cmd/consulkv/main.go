package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cbconsul/consul_sdk_go/pkg/consul"
	"github.com/cbconsul/consul_sdk_go/pkg/kv"
)

const usage = `usage: consulkv [-prefix p] <command> [flags] args

commands:
  get    [-raw] [-meta] key
  set    [-flags n] key value
  cas    -index n [-flags n] key value
  lock   [-session id] key
  unlock -session id key
  delete [-recurse] [-cas n] key
  tree   prefix
  keys   [-recurse] prefix
  watch  [-index n] [-wait d] [-count n] key
`

var errUsage = errors.New("invalid usage")

func main() {
	log.SetFlags(0)
	global := flag.NewFlagSet("consulkv", flag.ExitOnError)
	prefix := global.String("prefix", "", "key prefix applied to every command")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	client, mode, err := consul.NewFromEnv()
	if err != nil {
		log.Fatalf("init consul client: %v", err)
	}
	defer client.Close()
	if mode == consul.ModeMock {
		log.Printf("running against the in-memory store (CONSUL_RUNTIME_MODE=%s)", mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, client.KV().Prefixed(*prefix), global.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, client *kv.Client, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "get":
		raw := fs.Bool("raw", false, "print the stored bytes only")
		meta := fs.Bool("meta", false, "print response metadata")
		key, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		if *raw {
			value, err := client.GetRaw(ctx, key[0])
			if err != nil {
				return err
			}
			_, err = out.Write(value)
			return err
		}
		rec, md, err := client.GetWithMeta(ctx, key[0])
		if err != nil {
			return err
		}
		if err := printRecord(out, rec); err != nil {
			return err
		}
		if *meta {
			fmt.Fprintln(out, md.String())
		}
		return nil

	case "set", "cas":
		flags := fs.Uint64("flags", 0, "opaque flags stored with the key")
		index := fs.Uint64("index", 0, "expected ModifyIndex (cas only; 0 creates)")
		rest, err := parseArgs(fs, args, 2)
		if err != nil {
			return err
		}
		var opts []kv.WriteOption
		if *flags != 0 {
			opts = append(opts, kv.WithFlags(*flags))
		}
		var ok bool
		if cmd == "set" {
			ok, err = client.Set(ctx, rest[0], []byte(rest[1]), opts...)
		} else {
			ok, err = client.SetCAS(ctx, rest[0], []byte(rest[1]), *index, opts...)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ok)
		return nil

	case "lock":
		session := fs.String("session", "", "session id (default: random)")
		key, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		if *session == "" {
			*session = uuid.NewString()
		}
		if err := client.AcquireLock(ctx, key[0], *session); err != nil {
			return err
		}
		fmt.Fprintln(out, *session)
		return nil

	case "unlock":
		session := fs.String("session", "", "session id holding the lock")
		key, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		if *session == "" {
			return fmt.Errorf("%w: unlock needs -session", errUsage)
		}
		ok, err := client.Unlock(ctx, key[0], *session)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ok)
		return nil

	case "delete":
		recurse := fs.Bool("recurse", false, "delete every key under the prefix")
		cas := fs.String("cas", "", "expected ModifyIndex")
		key, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		var ok bool
		switch {
		case *recurse && *cas != "":
			return fmt.Errorf("%w: -recurse and -cas are exclusive", errUsage)
		case *recurse:
			ok, err = client.DeleteTree(ctx, key[0])
		case *cas != "":
			index, perr := strconv.ParseUint(*cas, 10, 64)
			if perr != nil {
				return fmt.Errorf("%w: -cas: %v", errUsage, perr)
			}
			ok, err = client.DeleteCAS(ctx, key[0], index)
		default:
			ok, err = client.Delete(ctx, key[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ok)
		return nil

	case "tree":
		prefix, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		tree, err := client.GetTree(ctx, prefix[0], kv.WithRecurse(true))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)

	case "keys":
		recurse := fs.Bool("recurse", false, "list nested keys instead of one level")
		prefix, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		keys, err := client.ListTree(ctx, prefix[0], kv.WithRecurse(*recurse))
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return nil

	case "watch":
		index := fs.Uint64("index", 0, "index to wait past (default: current)")
		wait := fs.Duration("wait", 30*time.Second, "maximum time the agent holds each request")
		count := fs.Int("count", 0, "stop after n changes (0: until interrupted)")
		key, err := parseArgs(fs, args, 1)
		if err != nil {
			return err
		}
		return watch(ctx, client, key[0], *index, *wait, *count, out)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func parseArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("%w: %s expects %d argument(s), got %d", errUsage, fs.Name(), n, fs.NArg())
	}
	return fs.Args(), nil
}

// watch prints key each time its ModifyIndex changes. Blocking reads return
// on any store change, so unchanged records are skipped.
func watch(ctx context.Context, client *kv.Client, key string, index uint64, wait time.Duration, count int, out io.Writer) error {
	var last uint64
	if index == 0 {
		rec, md, err := client.GetWithMeta(ctx, key)
		if err != nil {
			return err
		}
		index, last = md.Index, rec.ModifyIndex
	}
	for seen := 0; count == 0 || seen < count; {
		rec, md, err := client.Watch(ctx, key, index, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		// An index that moves backwards means the agent's state was reset.
		if md.Index < index {
			index = 0
			continue
		}
		index = md.Index
		if rec.ModifyIndex == last {
			continue
		}
		last = rec.ModifyIndex
		if err := printRecord(out, rec); err != nil {
			return err
		}
		seen++
	}
	return nil
}

func printRecord(out io.Writer, rec *kv.Record) error {
	value, err := rec.Decode()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\t%s\tmodify=%d flags=%d session=%s\n", rec.Key, value, rec.ModifyIndex, rec.Flags, rec.Session)
	return err
}
