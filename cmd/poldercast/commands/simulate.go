package commands

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mosaicnetworks/poldercast/src/config"
	"github.com/mosaicnetworks/poldercast/src/poldercast"
	"github.com/spf13/cobra"
)

type simulateConfig struct {
	nodes     int
	topics    int
	perNode   int
	duration  time.Duration
	seed      int64
	heartbeat time.Duration
	logLevel  string
}

//NewSimulateCmd returns the command that runs an in-memory overlay
func NewSimulateCmd() *cobra.Command {
	sc := &simulateConfig{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory overlay and report its views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(sc)
		},
	}

	cmd.Flags().IntVar(&sc.nodes, "nodes", 10, "Number of nodes")
	cmd.Flags().IntVar(&sc.topics, "topics", 4, "Size of the topic pool")
	cmd.Flags().IntVar(&sc.perNode, "per-node", 2, "Topics subscribed by each node")
	cmd.Flags().DurationVar(&sc.duration, "duration", 5*time.Second, "How long the overlay runs")
	cmd.Flags().Int64Var(&sc.seed, "seed", 1, "Seed of the topic assignment")
	cmd.Flags().DurationVar(&sc.heartbeat, "heartbeat", 50*time.Millisecond, "Time between gossip rounds")
	cmd.Flags().StringVar(&sc.logLevel, "log", "warn", "debug, info, warn, error, fatal, panic")

	return cmd
}

func simulate(sc *simulateConfig) error {
	if sc.perNode > sc.topics {
		return fmt.Errorf("per-node (%d) cannot exceed topics (%d)", sc.perNode, sc.topics)
	}

	conf := config.NewDefaultConfig()
	conf.LogLevel = sc.logLevel
	conf.HeartbeatTimeout = sc.heartbeat

	sim, err := poldercast.NewSimulation(conf, assignTopics(sc))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sc.duration)
	defer cancel()

	sim.Run(ctx)

	for _, n := range sim.Nodes {
		stats := n.GetStats()
		fmt.Printf("%s %s topics=[%s] rounds=%s", stats["moniker"], stats["id"], stats["topics"], stats["rounds"])
		for _, name := range n.Manager().Modules() {
			fmt.Printf(" %s=%s", name, stats[name+"_view"])
		}
		fmt.Println()
	}

	for _, t := range sim.Topics() {
		fmt.Printf("topic %s connected=%v\n", t, sim.TopicConnected(t))
	}

	return nil
}

func assignTopics(sc *simulateConfig) [][]string {
	rnd := rand.New(rand.NewSource(sc.seed))

	res := make([][]string, sc.nodes)
	for i := range res {
		for _, j := range rnd.Perm(sc.topics)[:sc.perNode] {
			res[i] = append(res[i], fmt.Sprintf("topic-%d", j))
		}
	}

	return res
}
