// sectorctl is a REPL for exercising an in-memory sectorstore.SectorStore built
// from a HuJSON layout config.
//
// Usage:
//
//	sectorctl --layout layout.hujson
//
// Commands (in REPL):
//
//	set <id> <field> <hex-bytes>   Acquire a field and write raw bytes into it
//	get <id> <field>               Show a field's bytes, or "dead"/"absent"
//	drop <id> <field>               Destroy a single field
//	pin <id>                        Pin an id, printing a token
//	release <token>                 Release a previously pinned token
//	erase <id>                      Queue id for (possibly deferred) removal
//	pending                         Process the deferred-erase queue
//	defrag / trydefrag               Run a defragment pass
//	stats                           Show size/capacity/dead-ratio/pending
//	iter [field]                    List live ids, optionally filtered
//	seq <count> [start]             Acquire field 0 on N sequential ids
//	bench <count>                   Benchmark sequential Acquire throughput
//	clear                           Drop every sector
//	help                            Show this help
//	exit / quit / q                 Exit
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/vela-systems/sectorstore/pkg/sectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("sectorctl", flag.ExitOnError)
	layoutPath := fs.StringP("layout", "l", "", "path to a HuJSON layout config")
	chunkCapacity := fs.Uint64P("chunk-capacity", "c", 0, "override the config's chunk capacity (0 keeps it)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *layoutPath == "" {
		fs.Usage()
		return fmt.Errorf("missing --layout")
	}

	cfg, err := loadStoreConfig(*layoutPath)
	if err != nil {
		return err
	}

	if *chunkCapacity != 0 {
		cfg.ChunkCapacity = *chunkCapacity
	}

	spec, names, sizes, err := buildLayout(cfg)
	if err != nil {
		return err
	}

	store, err := sectorstore.New(spec, cfg.ChunkCapacity)
	if err != nil {
		return fmt.Errorf("constructing store: %w", err)
	}

	repl := &REPL{store: store, fields: names, fieldSizes: sizes}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	store      *sectorstore.SectorStore
	fields     map[string]sectorstore.ComponentType
	fieldSizes map[sectorstore.ComponentType]uint32
	pins       map[string]*sectorstore.Pin
	liner      *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return home + "/.sectorctl_history"
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.pins = make(map[string]*sectorstore.Pin)

	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("sectorctl - sectorstore CLI (%d fields)\n", len(r.fields))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("sectorctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "set":
			r.cmdSet(args)

		case "get":
			r.cmdGet(args)

		case "drop":
			r.cmdDrop(args)

		case "pin":
			r.cmdPin(args)

		case "release":
			r.cmdRelease(args)

		case "erase":
			r.cmdErase(args)

		case "pending":
			r.store.ProcessPending()
			fmt.Println("ok")

		case "defrag":
			fmt.Printf("completed: %v\n", r.store.Defragment())

		case "trydefrag":
			fmt.Printf("completed: %v\n", r.store.TryDefragment())

		case "stats":
			r.cmdStats()

		case "iter":
			r.cmdIter(args)

		case "seq":
			r.cmdSeq(args)

		case "bench":
			r.cmdBench(args)

		case "clear":
			r.store.Clear()
			fmt.Println("ok")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"set", "get", "drop", "pin", "release",
		"erase", "pending", "defrag", "trydefrag",
		"stats", "iter", "seq", "bench", "clear",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  set <id> <field> <hex-bytes>   Acquire a field and write raw bytes into it")
	fmt.Println("  get <id> <field>               Show a field's bytes, or \"dead\"/\"absent\"")
	fmt.Println("  drop <id> <field>              Destroy a single field")
	fmt.Println("  pin <id>                       Pin an id, printing a token")
	fmt.Println("  release <token>                Release a previously pinned token")
	fmt.Println("  erase <id>                     Queue id for (possibly deferred) removal")
	fmt.Println("  pending                        Process the deferred-erase queue")
	fmt.Println("  defrag / trydefrag             Run a defragment pass")
	fmt.Println("  stats                          Show size/capacity/dead-ratio/pending")
	fmt.Println("  iter [field]                   List live ids, optionally filtered")
	fmt.Println("  seq <count> [start]            Acquire field 0 on N sequential ids")
	fmt.Println("  bench <count>                  Benchmark sequential Acquire throughput")
	fmt.Println("  clear                          Drop every sector")
	fmt.Println("  help                           Show this help")
	fmt.Println("  exit / quit / q                Exit")
}

func (r *REPL) fieldByName(name string) (sectorstore.ComponentType, bool) {
	t, ok := r.fields[name]
	return t, ok
}

// unsafeFieldBytes views an acquired field pointer as a byte slice of the
// declared size, the same way podComponent's move/copy functions (layout.go)
// do.
func unsafeFieldBytes(ptr unsafe.Pointer, size int) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}

func parseID(s string) (sectorstore.EntityID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}

	return sectorstore.EntityID(n), nil
}

func (r *REPL) cmdSet(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: set <id> <field> <hex-bytes>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Printf("bad id: %v\n", err)
		return
	}

	t, ok := r.fieldByName(args[1])
	if !ok {
		fmt.Printf("unknown field: %s\n", args[1])
		return
	}

	raw, err := hex.DecodeString(args[2])
	if err != nil {
		fmt.Printf("bad hex: %v\n", err)
		return
	}

	ptr, err := r.store.Acquire(id, t)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	size := int(r.fieldSizes[t])
	if len(raw) > size {
		raw = raw[:size]
	}

	dst := unsafeFieldBytes(ptr, size)
	copy(dst, raw)

	fmt.Println("ok")
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: get <id> <field>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Printf("bad id: %v\n", err)
		return
	}

	t, ok := r.fieldByName(args[1])
	if !ok {
		fmt.Printf("unknown field: %s\n", args[1])
		return
	}

	ref, found := r.store.Find(id)
	if !found {
		fmt.Println("absent")
		return
	}

	if !ref.IsAlive(t) {
		fmt.Println("dead")
		return
	}

	ptr, err := ref.Field(t)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	size := int(r.fieldSizes[t])
	fmt.Println(hex.EncodeToString(unsafeFieldBytes(ptr, size)))
}

func (r *REPL) cmdDrop(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: drop <id> <field>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Printf("bad id: %v\n", err)
		return
	}

	t, ok := r.fieldByName(args[1])
	if !ok {
		fmt.Printf("unknown field: %s\n", args[1])
		return
	}

	if err := r.store.DestroyMember(id, t); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdPin(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: pin <id>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Printf("bad id: %v\n", err)
		return
	}

	pin, err := r.store.Pin(id)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	n := len(r.pins)
	for {
		if _, taken := r.pins[strconv.Itoa(n)]; !taken {
			break
		}
		n++
	}

	token := strconv.Itoa(n)
	r.pins[token] = pin

	fmt.Printf("token: %s\n", token)
}

func (r *REPL) cmdRelease(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: release <token>")
		return
	}

	pin, ok := r.pins[args[0]]
	if !ok {
		fmt.Println("unknown token")
		return
	}

	pin.Release()
	delete(r.pins, args[0])
	fmt.Println("ok")
}

func (r *REPL) cmdErase(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: erase <id>")
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Printf("bad id: %v\n", err)
		return
	}

	if err := r.store.EraseAsync(id); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdStats() {
	fmt.Printf("size:      %d\n", r.store.Size())
	fmt.Printf("capacity:  %d\n", r.store.Capacity())
	fmt.Printf("sparse:    %d\n", r.store.SparseCapacity())
	fmt.Printf("dead:      %.4f\n", r.store.DeadRatio())
	fmt.Printf("pending:   %d\n", r.store.PendingErases())
}

func (r *REPL) cmdIter(args []string) {
	count := 0

	print := func(ref sectorstore.SectorRef) bool {
		fmt.Printf("  %d\n", ref.ID())
		count++

		return true
	}

	if len(args) >= 1 {
		t, ok := r.fieldByName(args[0])
		if !ok {
			fmt.Printf("unknown field: %s\n", args[0])
			return
		}

		r.store.IterAlive(t)(print)
	} else {
		r.store.Iter()(print)
	}

	fmt.Printf("(%d ids)\n", count)
}

func (r *REPL) cmdSeq(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: seq <count> [start]")
		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("count must be a positive integer")
		return
	}

	start := 0
	if len(args) >= 2 {
		start, _ = strconv.Atoi(args[1])
	}

	t := sectorstore.ComponentType(0)

	for i := 0; i < count; i++ {
		if _, err := r.store.Acquire(sectorstore.EntityID(start+i), t); err != nil {
			fmt.Printf("error at %d: %v\n", i, err)
			return
		}
	}

	fmt.Println("ok")
}

func (r *REPL) cmdBench(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bench <count>")
		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("count must be a positive integer")
		return
	}

	t := sectorstore.ComponentType(0)

	start := time.Now()

	for i := 0; i < count; i++ {
		if _, err := r.store.Acquire(sectorstore.EntityID(i), t); err != nil {
			fmt.Printf("error at acquire %d: %v\n", i, err)
			return
		}
	}

	elapsed := time.Since(start)

	fmt.Printf("%d acquires in %s (%.0f/s)\n", count, elapsed, float64(count)/elapsed.Seconds())
}
