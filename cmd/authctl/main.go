// Command authctl is the operator tool for the student-records auth core.
package main

import (
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	sharedcfg "github.com/Skotchmaster/student_records/pkg/config"
	"github.com/Skotchmaster/student_records/pkg/events"
)

func main() {
	sharedcfg.LoadDotEnv()
	if err := newRootCommand(envconfig.OsLookuper(), kafkaPublisher).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// publisherFunc builds the event publisher used by commands that change
// token state. It returns events.Nop when no brokers are configured.
type publisherFunc func(brokers []string, topic string) events.Publisher

func kafkaPublisher(brokers []string, topic string) events.Publisher {
	if len(brokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(brokers, topic)
}

func newRootCommand(env envconfig.Lookuper, publisher publisherFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator utility for student-records authentication",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newHashPasswordCommand())
	cmd.AddCommand(newInspectTokenCommand(env))
	cmd.AddCommand(newRevokeCommand(env, publisher))
	cmd.AddCommand(newServiceTokenCommand(env))
	return cmd
}
