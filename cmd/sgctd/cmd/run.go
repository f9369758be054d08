package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sgct-project/combi/pkg/clog"
	"github.com/sgct-project/combi/pkg/config"
	"github.com/sgct-project/combi/pkg/kv"
	"github.com/sgct-project/combi/pkg/levelvector"
	"github.com/sgct-project/combi/pkg/processmanager"
	"github.com/sgct-project/combi/pkg/scheme"
	"github.com/sgct-project/combi/pkg/task"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a combination loop against a scheme file",
	Long:  `nada`,
	Run: func(cmd *cobra.Command, args []string) {
		v := parseCmd(cmd)
		log := clog.NewAt(v.GetString("logLevel"))

		cfg, err := config.Load(v)
		if err != nil {
			fail(log, err)
		}

		groupSizes, err := parseIntList(v.GetString("groups"))
		if err != nil {
			fail(log, err)
		}
		if len(groupSizes) == 0 {
			groupSizes = []int{1}
		}

		store, err := openStore(v)
		if err != nil {
			fail(log, err)
		}
		defer store.Close()

		reg := task.NewRegistry()
		task.RegisterBuiltins(reg)

		m := processmanager.New(cfg, groupSizes, reg, log, store)
		m.TaskKind = task.Kind(v.GetString("taskKind"))

		schemePath := v.GetString("scheme")
		if schemePath == "" {
			fmt.Fprintln(os.Stderr, "--scheme is required")
			os.Exit(1)
		}
		systemCount := v.GetInt("systemCount")
		if systemCount >= 2 {
			full, _, err := scheme.LoadFile(schemePath)
			if err != nil {
				fail(log, err)
			}
			if err := m.LoadScheme(full, v.GetInt("systemIndex"), systemCount); err != nil {
				fail(log, err)
			}
		} else {
			if err := m.LoadSchemeFile(schemePath); err != nil {
				fail(log, err)
			}
		}

		lmin, err := parseLevelVector(v.GetString("lmin"))
		if err != nil {
			fail(log, err)
		}
		lmax, err := parseLevelVector(v.GetString("lmax"))
		if err != nil {
			fail(log, err)
		}
		parallelization, err := parseIntList(v.GetString("parallelization"))
		if err != nil {
			fail(log, err)
		}

		var tl *config.ThirdLevel
		if host := v.GetString("relayHost"); host != "" || v.GetBool("relayDiscover") {
			tl = &config.ThirdLevel{Host: host, Port: v.GetInt("relayPort"), SystemNumber: v.GetInt("systemIndex")}
			if tl.Host == "" {
				addr, err := kv.ResolveRelayAddr(v.GetString("consulAddr"), v.GetString("relayService"))
				if err != nil {
					fail(log, err)
				}
				if addr == "" {
					log.Log("msg", "no relay discovered via consul, running without third-level reduce")
					tl = nil
				} else {
					host, portStr, splitErr := splitHostPort(addr)
					if splitErr != nil {
						fail(log, splitErr)
					}
					port, _ := strconv.Atoi(portStr)
					tl.Host, tl.Port = host, port
				}
			}
		}

		params := m.BuildParams(lmin, lmax, v.GetInt("ncombi"), v.GetInt("numGrids"), cfg.ElementType, parallelization, nil, nil, tl)

		if err := m.Init(params); err != nil {
			fail(log, err)
		}
		if err := m.RunCombinationLoop(); err != nil {
			fail(log, err)
		}
		if err := m.Exit(); err != nil {
			fail(log, err)
		}
	},
}

func init() {
	runCmd.Flags().String("scheme", "", "path to the combination scheme file")
	runCmd.Flags().Int("systemCount", 0, "number of HPC systems sharing the scheme (0 or 1: no decomposition)")
	runCmd.Flags().Int("systemIndex", 0, "this process's system index, when systemCount >= 2")
	runCmd.Flags().String("groups", "1", "comma-separated worker count per process group")
	runCmd.Flags().String("lmin", "", "comma-separated minimum level vector")
	runCmd.Flags().String("lmax", "", "comma-separated maximum level vector")
	runCmd.Flags().Int("ncombi", 1, "number of combination steps")
	runCmd.Flags().Int("numGrids", 1, "number of grids per task")
	runCmd.Flags().String("parallelization", "1", "comma-separated per-dimension process decomposition")
	runCmd.Flags().String("taskKind", "paraboloid", "registered task kind every scheme term is instantiated as")
	runCmd.Flags().String("relayHost", "", "third-level relay host (enables third-level reduce)")
	runCmd.Flags().Int("relayPort", 9999, "third-level relay port")
	runCmd.Flags().Bool("relayDiscover", false, "discover the relay address via consul instead of a static host")
	runCmd.Flags().String("relayService", "sgct-relay", "consul service name for relay discovery")
	runCmd.Flags().String("consulAddr", "", "consul agent address (\"\" for the local default)")
	runCmd.Flags().String("kv", "mem", "state store backend: mem, bolt, or consul")
	runCmd.Flags().String("boltPath", "sgctd.db", "bolt database path, when --kv=bolt")
	runCmd.Flags().String("elementType", "real", "real or complex")
	runCmd.Flags().Bool("enableFaultTolerance", false, "recover failed tasks from the group's combined solution instead of excluding them")
	runCmd.Flags().String("logLevel", "info", "debug, info, warn, or error")
	addCmd(runCmd)
}

func openStore(v *viper.Viper) (kv.KV, error) {
	switch v.GetString("kv") {
	case "bolt":
		return kv.NewBoltKV(v.GetString("boltPath"))
	case "consul":
		return kv.NewConsulKV(v.GetString("consulAddr"))
	default:
		return kv.NewMemKV(), nil
	}
}

func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parsing %q as an integer list: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}

func parseLevelVector(s string) (levelvector.V, error) {
	ints, err := parseIntList(s)
	if err != nil {
		return nil, err
	}
	return levelvector.New(ints...), nil
}

func splitHostPort(addr string) (string, string, error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("relay address %q has no port", addr)
	}
	return addr[:i], addr[i+1:], nil
}

func fail(log clog.Logger, err error) {
	log.Log("err", err, "fatal")
	os.Exit(1)
}
