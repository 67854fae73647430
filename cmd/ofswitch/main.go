// Command ofswitch is the process entry point: it parses the CLI
// surface (internal/config), resolves lcore roles, constructs the
// top-level Engine, and runs until a termination signal requests
// shutdown (spec §6/§2).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hcswitch/ofcore/internal/config"
	"github.com/hcswitch/ofcore/internal/dataplane"
	"github.com/hcswitch/ofcore/internal/engine"
	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/lifecycle"
	"github.com/hcswitch/ofcore/internal/xerr"
)

// Exit codes distinguish the diagnostic classes spec.md §7 calls out:
// argument-validation errors print a one-line diagnostic and exit
// nonzero, with a distinct code per class so scripts driving this
// binary (S3/S4) can tell a role conflict from an out-of-range size.
const (
	exitOK = iota
	exitUsage
	exitRoleConflict
	exitOutOfRange
	exitRuntime
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if xerr.Is(err, xerr.KindOutOfRange) {
			return exitOutOfRange
		}
		return exitUsage
	}

	lcores := detectLcores()
	roles, err := config.ResolveRoles(cfg, lcores, dataplane.DefaultLimits)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return classifyRoleError(err)
	}

	if cfg.ShowCoreConfig {
		printCoreConfig(roles)
		return exitOK
	}

	bridge := flowtable.NewBridge(cfg.HashType.Select())
	eng := engine.New(engine.Options{
		BridgeName: "br0",
		Bridge:     bridge,
		Roles:      roles,
		Logger:     log,
	})

	if err := eng.Start(); err != nil {
		log.Error().Err(err).Msg("engine start failed")
		return exitRuntime
	}

	waitForSignal()

	if err := eng.Shutdown(lifecycle.GraceGracefully); err != nil {
		log.Error().Err(err).Msg("engine shutdown failed")
		return exitRuntime
	}
	return exitOK
}

// detectLcores stands in for the platform lcore-enumeration call the
// real driver layer would make (spec §1: NIC PMD/raw-socket driver and
// the host topology they read from are out of scope for this core).
func detectLcores() []dataplane.LcoreInfo {
	return nil
}

// classifyRoleError maps a role-resolution failure to the distinct
// exit code spec.md §8's S3/S4 scenarios name ("already assigned as
// I/O" vs. "out-of-range").
func classifyRoleError(err error) int {
	if xerr.Is(err, xerr.KindOutOfRange) {
		return exitOutOfRange
	}
	return exitRoleConflict
}

func printCoreConfig(roles *dataplane.RoleAssignment) {
	fmt.Printf("master=%d combined=%v\n", roles.Master, roles.Combined)
	fmt.Printf("io=%v\n", roles.IO)
	fmt.Printf("workers=%v\n", roles.Workers)
	for _, rx := range roles.RX {
		fmt.Printf("rx port=%d queue=%d lcore=%d\n", rx.Port, rx.Queue, rx.Lcore)
	}
	for _, tx := range roles.TX {
		fmt.Printf("tx port=%d lcore=%d\n", tx.Port, tx.Lcore)
	}
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
