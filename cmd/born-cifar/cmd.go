package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/cifar/internal/backend/cpu"
	"github.com/born-ml/cifar/internal/checkpoint"
	"github.com/born-ml/cifar/internal/envconfig"
	"github.com/born-ml/cifar/internal/layercfg"
	"github.com/born-ml/cifar/internal/logutil"
	"github.com/born-ml/cifar/internal/models"
	"github.com/born-ml/cifar/internal/nn"
	"github.com/born-ml/cifar/internal/tensor"
)

// Architectures accepted by summary and key.
const (
	archTiny     = "tiny"
	archCIFAR10  = "cifar10"
	archCIFAR100 = "cifar100"
	archCarlini  = "carlini"
)

var errUnknownArch = errors.New("unknown architecture")

// NewCLI returns the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "born-cifar",
		Short: "CIFAR classifiers and pretrained checkpoints",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
	}

	cobra.EnableCommandSorting = false

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "born-cifar %s\n", version)
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary [tiny|cifar10|cifar100|carlini]",
		Short: "Print the layers of a network",
		Long: `Print the layers of a network with output shapes and parameter counts.

With --layers, a feature stage is compiled from the compact layer syntax
instead, e.g. --layers "16 16 M 32 M (64,0) M".`,
		Args: cobra.MaximumNArgs(1),
		RunE: SummaryHandler,
	}
	summaryCmd.Flags().Int("channels", 0, "Base channel count (default 16 for tiny, 128 otherwise)")
	summaryCmd.Flags().Int("padding", 1, "Padding of the tiny network (0 or 1)")
	summaryCmd.Flags().String("layers", "", "Compile a custom feature stage")
	summaryCmd.Flags().Bool("batch-norm", false, "Insert BatchNorm2D after each convolution with --layers")

	keyCmd := &cobra.Command{
		Use:   "key [tiny|cifar10|cifar100|carlini]",
		Short: "Show which checkpoint a configuration loads",
		Args:  cobra.ExactArgs(1),
		RunE:  KeyHandler,
	}
	keyCmd.Flags().Float64("adv-l2", 0, "L2 adversarial training epsilon")
	keyCmd.Flags().Float64("yoshida", 0, "Yoshida regularization epsilon")
	keyCmd.Flags().Float64("static", 0, "Static adversarial training epsilon")
	keyCmd.Flags().Float64("dynamic", 0, "Dynamic adversarial training epsilon")
	keyCmd.Flags().Bool("inf", false, "Load the L-inf trained variant")
	keyCmd.Flags().Int("padding", 1, "Padding of the tiny network (0 or 1)")
	keyCmd.Flags().Bool("adv", false, "Adversarially trained tiny network (padding 0 only)")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered checkpoint keys",
		Args:    cobra.NoArgs,
		RunE:    ListHandler,
	}

	fetchCmd := &cobra.Command{
		Use:   "fetch KEY [KEY...]",
		Short: "Download checkpoints into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE:  FetchHandler,
	}
	fetchCmd.Flags().IntP("jobs", "j", 4, "Number of concurrent downloads")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printEnv(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(
		versionCmd,
		summaryCmd,
		keyCmd,
		listCmd,
		fetchCmd,
		envCmd,
	)

	return rootCmd
}

// layerRow is one line of a summary table.
type layerRow struct {
	name   string
	module string
	shape  tensor.Shape
	params int
}

func SummaryHandler(cmd *cobra.Command, args []string) error {
	channels, err := cmd.Flags().GetInt("channels")
	if err != nil {
		return err
	}
	padding, err := cmd.Flags().GetInt("padding")
	if err != nil {
		return err
	}
	layers, err := cmd.Flags().GetString("layers")
	if err != nil {
		return err
	}
	batchNorm, err := cmd.Flags().GetBool("batch-norm")
	if err != nil {
		return err
	}

	backend := cpu.New()
	input := tensor.Zeros[float32](tensor.Shape{1, 3, 32, 32}, backend)

	if layers != "" {
		cfg, err := layercfg.Parse(layers)
		if err != nil {
			return err
		}
		features, _, err := layercfg.Compile(cfg, batchNorm, backend)
		if err != nil {
			return err
		}
		rows, _ := trace("", features, input)
		renderSummary(cmd.OutOrStdout(), rows)
		return nil
	}

	if len(args) == 0 {
		return errors.New("summary needs an architecture or --layers")
	}

	net, err := buildNetwork(cmd, args[0], channels, padding)
	if err != nil {
		return err
	}

	rows, x := trace("features.", net.Features(), input)
	classifierRows, _ := trace("classifier.", net.Classifier(), x.Flatten(1))
	rows = append(rows, classifierRows...)

	renderSummary(cmd.OutOrStdout(), rows)
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %d parameters\n", args[0], countParams(net.Parameters()))
	return nil
}

func buildNetwork(cmd *cobra.Command, arch string, channels, padding int) (*models.Network[*cpu.CPUBackend], error) {
	ctx := cmd.Context()
	backend := cpu.New()

	switch arch {
	case archTiny:
		if channels == 0 {
			channels = 16
		}
		return models.CIFAR10Tiny(ctx, models.TinyConfig{Channels: channels, Padding: padding}, backend)
	case archCIFAR10:
		if channels == 0 {
			channels = 128
		}
		return models.CIFAR10(ctx, models.CIFAR10Config{Channels: channels}, backend)
	case archCIFAR100:
		if channels == 0 {
			channels = 128
		}
		return models.CIFAR100(ctx, models.CIFAR100Config{Channels: channels}, backend)
	case archCarlini:
		return models.Carlini(ctx, models.CarliniConfig{}, backend)
	default:
		return nil, fmt.Errorf("%w %q, want one of %s", errUnknownArch, arch, archNames())
	}
}

// trace runs x through each module of s and records the output shapes.
func trace(prefix string, s *nn.Sequential[*cpu.CPUBackend], x *tensor.Tensor[float32, *cpu.CPUBackend]) ([]layerRow, *tensor.Tensor[float32, *cpu.CPUBackend]) {
	nn.SetTraining[*cpu.CPUBackend](s, false)

	rows := make([]layerRow, 0, s.Len())
	for i, m := range s.Modules() {
		x = m.Forward(x)
		rows = append(rows, layerRow{
			name:   fmt.Sprintf("%s%d", prefix, i),
			module: fmt.Sprint(m),
			shape:  x.Shape(),
			params: countParams(m.Parameters()),
		})
	}
	return rows, x
}

func countParams(params []*nn.Parameter[*cpu.CPUBackend]) int {
	var n int
	for _, p := range params {
		n += p.NumElements()
	}
	return n
}

func renderSummary(w io.Writer, rows []layerRow) {
	var data [][]string
	for _, r := range rows {
		data = append(data, []string{r.name, r.module, fmt.Sprint(r.shape), fmt.Sprint(r.params)})
	}

	table := newTable(w, "LAYER", "MODULE", "OUTPUT", "PARAMS")
	table.AppendBulk(data)
	table.Render()
}

func KeyHandler(cmd *cobra.Command, args []string) error {
	key, err := selectKey(cmd, args[0])
	if err != nil {
		return err
	}

	registry, err := checkpoint.DefaultRegistry()
	if err != nil {
		return err
	}

	location, err := registry.Lookup(key)
	var lookupErr *checkpoint.LookupError
	switch {
	case errors.As(err, &lookupErr):
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t(not registered)\n", key)
	case err != nil:
		return err
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, location)
	}
	return nil
}

func selectKey(cmd *cobra.Command, arch string) (string, error) {
	flags := cmd.Flags()
	switch arch {
	case archTiny:
		padding, err := flags.GetInt("padding")
		if err != nil {
			return "", err
		}
		adv, err := flags.GetBool("adv")
		if err != nil {
			return "", err
		}
		return models.SelectTinyKey(models.TinyConfig{Padding: padding, TrainedAdv: adv})
	case archCIFAR10:
		var cfg models.CIFAR10Config
		for name, dst := range map[string]*float64{
			"adv-l2":  &cfg.AdvL2Eps,
			"yoshida": &cfg.YoshidaEps,
			"static":  &cfg.StaticEps,
			"dynamic": &cfg.DynamicEps,
		} {
			v, err := flags.GetFloat64(name)
			if err != nil {
				return "", err
			}
			*dst = v
		}
		inf, err := flags.GetBool("inf")
		if err != nil {
			return "", err
		}
		cfg.LoadInf = inf
		return models.SelectKey(cfg)
	case archCIFAR100:
		return models.CIFAR100Key, nil
	case archCarlini:
		return models.CarliniKey, nil
	default:
		return "", fmt.Errorf("%w %q, want one of %s", errUnknownArch, arch, archNames())
	}
}

func ListHandler(cmd *cobra.Command, args []string) error {
	registry, err := checkpoint.DefaultRegistry()
	if err != nil {
		return err
	}

	var data [][]string
	for _, key := range registry.Keys() {
		location, err := registry.Lookup(key)
		if err != nil {
			return err
		}
		data = append(data, []string{key, location})
	}

	table := newTable(cmd.OutOrStdout(), "KEY", "LOCATION")
	table.AppendBulk(data)
	table.Render()
	return nil
}

func FetchHandler(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}

	store, err := checkpoint.NewStore()
	if err != nil {
		return err
	}
	store.Fetcher.Progress = func(location string, completed, total int64) {
		logutil.Trace("download progress", "location", location, "completed", completed, "total", total)
	}

	paths := make([]string, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(jobs, 1))
	for i, key := range args {
		g.Go(func() error {
			path, err := store.Fetch(ctx, key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			slog.Debug("fetched checkpoint", "key", key, "path", path)
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, key := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, paths[i])
	}
	return nil
}

func printEnv(w io.Writer) {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	slices.Sort(names)

	var data [][]string
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{name, fmt.Sprint(v.Value), v.Description})
	}

	table := newTable(w, "NAME", "VALUE", "DESCRIPTION")
	table.AppendBulk(data)
	table.Render()
}

// newTable returns a borderless, left-aligned table writer.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

// archNames lists the accepted architectures for error messages.
func archNames() string {
	return strings.Join([]string{archTiny, archCIFAR10, archCIFAR100, archCarlini}, ", ")
}
