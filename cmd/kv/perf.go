package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/cmd/util"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sKV servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 10
	perfSkip             = make([]string, 0)
)

// perfCase is one benchmark. prefill controls whether the keys are written before the timer starts.
// Failed reads are logged by the client itself, op only returns write errors.
type perfCase struct {
	name    string
	prefill bool
	op      func(keys *perfKeys, counter int) error
}

func init() {
	perfTestCmd.Flags().String("skip", "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,read)"))
	perfTestCmd.Flags().Int("threads", 10, util.WrapString("Number of threads to use for the benchmark"))
	perfTestCmd.Flags().Int("large-value-size", 100, util.WrapString("How large the value for the write-large test should be (in KB)"))
	perfTestCmd.Flags().Int("keys", 100, util.WrapString("How many different keys to use for the tests"))
	perfTestCmd.Flags().Int("batch", 10, util.WrapString("How many keys a write-many and read-many operation contains"))
	perfTestCmd.Flags().String("csv", "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfBatchSize = min(max(viper.GetInt("batch"), 1), perfKeySpread)
	perfSkip = util.SplitList(viper.GetString("skip"))

	return nil
}

func perfCases() []perfCase {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	return []perfCase{
		{name: "write", op: func(k *perfKeys, i int) error {
			return rpcStore.Write(k.get(i), value)
		}},
		{name: "write-large", op: func(k *perfKeys, i int) error {
			return rpcStore.Write(k.get(i), largeValue)
		}},
		{name: "write-many", op: func(k *perfKeys, i int) error {
			return rpcStore.WriteMany(k.pairs(i, value))
		}},
		{name: "read", prefill: true, op: func(k *perfKeys, i int) error {
			rpcStore.Read(k.get(i))
			return nil
		}},
		{name: "read-many", prefill: true, op: func(k *perfKeys, i int) error {
			rpcStore.ReadMany(k.batch(i))
			return nil
		}},
		{name: "remove", prefill: true, op: func(k *perfKeys, i int) error {
			return rpcStore.Remove(k.get(i))
		}},
		{name: "has", prefill: true, op: func(k *perfKeys, i int) error {
			rpcStore.Has(k.get(i))
			return nil
		}},
		{name: "has-not", op: func(k *perfKeys, i int) error {
			rpcStore.Has(fmt.Sprintf("%s/has-not-%d", perfKeyPrefix, i%100))
			return nil
		}},
		{name: "mixed", prefill: true, op: func(k *perfKeys, i int) error {
			key := k.get(i)
			switch i % 4 {
			case 0:
				return rpcStore.Write(key, value)
			case 1:
				rpcStore.Read(key)
			case 2:
				return rpcStore.Remove(key)
			case 3:
				rpcStore.Has(key)
			}
			return nil
		}},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sKV servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)

	for _, pc := range perfCases() {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(pc.name) {
				return
			}

			keys := newPerfKeys(pc.name)

			if pc.prefill {
				if err := rpcStore.WriteMany(keys.all()); err != nil {
					log.Printf("(%s) - error preparing keys: %v\n", pc.name, err)
				}
			}

			b.Cleanup(func() {
				if err := rpcStore.RemoveMany(keys.keys); err != nil {
					log.Printf("(%s) - error removing keys: %v\n", pc.name, err)
				}
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := pc.op(keys, counter); err != nil {
						log.Printf("(%s) - error: %v\n", pc.name, err)
					}
					counter++
				}
			})
		})

		results[pc.name] = result
		printResult(pc.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// perfKeys is the fixed key set of one benchmark
type perfKeys struct {
	keys []string
}

func newPerfKeys(prefix string) *perfKeys {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return &perfKeys{keys: keys}
}

func (k *perfKeys) get(i int) string {
	return k.keys[i%len(k.keys)]
}

// batch returns perfBatchSize consecutive keys starting at i (with wraparound)
func (k *perfKeys) batch(i int) []string {
	out := make([]string, perfBatchSize)
	for j := range out {
		out[j] = k.get(i + j)
	}
	return out
}

func (k *perfKeys) pairs(i int, value []byte) []store.KeyValue {
	batch := k.batch(i)
	out := make([]store.KeyValue, len(batch))
	for j, key := range batch {
		out[j] = store.KeyValue{Key: key, Value: value}
	}
	return out
}

func (k *perfKeys) all() []store.KeyValue {
	out := make([]store.KeyValue, len(k.keys))
	for i, key := range k.keys {
		out[i] = store.KeyValue{Key: key, Value: []byte("test")}
	}
	return out
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Threads", "LargeValueSizeKB", "Keys Count", "Batch",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp, opsPerSec, skipped := 0.0, 0.0, "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
