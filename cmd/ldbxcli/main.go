// Command ldbxcli is a thin REPL client over the ldbx engine: it parses a
// handful of commands and calls straight through to the public engine
// operations (spec §6). All tree, transaction, and commit logic lives in
// the ldbx package; this binary owns only argument parsing and I/O.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/elenavoss/ldbx"
)

const (
	exitOK          = 0
	exitClientError = 1
	exitEngineError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	flagConfig := flag.String("config", "", "path to a YAML config file")
	flagDBPath := flag.String("db", "", "path to the database file")
	flagPageSize := flag.Int("page-size", 0, "page size in bytes, used only when creating a new database")
	flagReadOnly := flag.Bool("read-only", false, "open the database read-only")
	flagNoSync := flag.Bool("no-sync", false, "skip per-commit fsync; use SYNC to flush explicitly")
	flagLogLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ldbxcli: reading config:", err)
		return exitClientError
	}
	if *flagDBPath != "" {
		cfg.DBPath = *flagDBPath
	}
	if *flagPageSize != 0 {
		cfg.PageSize = *flagPageSize
	}
	if *flagReadOnly {
		cfg.ReadOnly = true
	}
	if *flagNoSync {
		cfg.NoSync = true
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "ldbxcli: -db or db_path in config is required")
		return exitClientError
	}

	logger := ldbx.NewLoggerAtLevel(cfg.LogLevel)
	env, err := ldbx.Open(cfg.DBPath, ldbx.Options{
		PageSize: cfg.PageSize,
		ReadOnly: cfg.ReadOnly,
		NoSync:   cfg.NoSync,
		Logger:   &logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ldbxcli: open:", err)
		return exitEngineError
	}
	defer env.Close()

	return repl(env, os.Stdin, os.Stdout)
}

type session struct {
	env    *ldbx.Env
	writer *ldbx.Writer
	depth  int
}

func repl(env *ldbx.Env, in *os.File, out *os.File) int {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 1024), 1<<20)

	s := &session{env: env}
	interactive := false
	if fi, err := in.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	for {
		if interactive {
			fmt.Fprint(out, "ldbx> ")
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := s.dispatch(line, out); err != nil {
			fmt.Fprintln(out, "ERR", err)
		}
	}

	if s.writer != nil {
		s.writer.Abort()
	}
	return exitOK
}

func (s *session) dispatch(line string, out *os.File) error {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "BEGIN":
		return s.begin()
	case "COMMIT":
		return s.commit(out)
	case "ROLLBACK":
		return s.rollback(out)
	case "SET":
		if len(args) < 2 {
			return fmt.Errorf("usage: SET key value")
		}
		return s.set(args[0], strings.Join(args[1:], " "))
	case "GET":
		if len(args) != 1 {
			return fmt.Errorf("usage: GET key")
		}
		return s.get(args[0], out)
	case "DELETE":
		if len(args) != 1 {
			return fmt.Errorf("usage: DELETE key")
		}
		return s.delete(args[0], out)
	case "RANGE":
		if len(args) != 2 {
			return fmt.Errorf("usage: RANGE start end")
		}
		return s.rangeScan(args[0], args[1], out, false)
	case "COUNT":
		if len(args) != 2 {
			return fmt.Errorf("usage: COUNT start end")
		}
		return s.rangeScan(args[0], args[1], out, true)
	case "STATS":
		return s.stats(out)
	case "SYNC":
		return s.env.Sync(true)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func (s *session) begin() error {
	if s.writer == nil {
		w, err := s.env.BeginWrite()
		if err != nil {
			return err
		}
		s.writer = w
		s.depth = 1
		return nil
	}
	if err := s.writer.Begin(); err != nil {
		return err
	}
	s.depth++
	return nil
}

func (s *session) commit(out *os.File) error {
	if s.writer == nil {
		return fmt.Errorf("not in a transaction")
	}
	if err := s.writer.Commit(); err != nil {
		return err
	}
	s.depth--
	if s.depth <= 0 {
		s.writer = nil
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func (s *session) rollback(out *os.File) error {
	if s.writer == nil {
		return fmt.Errorf("not in a transaction")
	}
	if err := s.writer.Abort(); err != nil {
		return err
	}
	s.depth--
	if s.depth <= 0 {
		s.writer = nil
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func (s *session) set(key, val string) error {
	if s.writer == nil {
		return fmt.Errorf("SET requires an open transaction (BEGIN first)")
	}
	return s.writer.Put([]byte(key), []byte(val))
}

func (s *session) delete(key string, out *os.File) error {
	if s.writer == nil {
		return fmt.Errorf("DELETE requires an open transaction (BEGIN first)")
	}
	existed, err := s.writer.Delete([]byte(key))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, existed)
	return nil
}

func (s *session) get(key string, out *os.File) error {
	if s.writer != nil {
		val, ok, err := s.writer.Get([]byte(key))
		if err != nil {
			return err
		}
		printGet(out, val, ok)
		return nil
	}
	r, err := s.env.BeginRead()
	if err != nil {
		return err
	}
	defer r.Close()
	val, ok, err := r.Get([]byte(key))
	if err != nil {
		return err
	}
	printGet(out, val, ok)
	return nil
}

func (s *session) stats(out *os.File) error {
	st := s.env.Stats()
	fmt.Fprintf(out, "page_size=%d active_txn=%d high_water_mark=%d root_page=%d freelist_available=%d freelist_pending=%d\n",
		st.PageSize, st.ActiveTxnID, st.HighWaterMark, st.RootPage, st.FreelistAvailable, st.FreelistPending)
	return nil
}

func printGet(out *os.File, val []byte, ok bool) {
	if !ok {
		fmt.Fprintln(out, "(absent)")
		return
	}
	fmt.Fprintln(out, string(val))
}

func (s *session) rangeScan(start, end string, out *os.File, countOnly bool) error {
	var cur *ldbx.Cursor
	var err error
	var closer func() error

	if s.writer != nil {
		cur, err = s.writer.Range([]byte(start), []byte(end))
	} else {
		r, rerr := s.env.BeginRead()
		if rerr != nil {
			return rerr
		}
		closer = r.Close
		cur, err = r.Range([]byte(start), []byte(end))
	}
	if err != nil {
		if closer != nil {
			closer()
		}
		return err
	}
	defer func() {
		if closer != nil {
			closer()
		}
	}()

	n := 0
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		n++
		if !countOnly {
			fmt.Fprintf(out, "%s = %s\n", k, v)
		}
	}
	if countOnly {
		fmt.Fprintln(out, n)
	}
	return nil
}
