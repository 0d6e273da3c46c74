package main

import (
	"bytes"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blesail/internal/testutils"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writers of a running command
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/blesail test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

// resetFlags restores every flag to its default so commands can be executed repeatedly
func resetFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		for _, fs := range []*pflag.FlagSet{c.Flags(), c.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
	}
}

// ExecuteCommand runs the root command with args and returns stdout, stderr and the error
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	resetFlags(rootCmd, connectCmd, profilesCmd, decodeCmd)

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}
