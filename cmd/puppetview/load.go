package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/runtime"
)

var loadFromMemory bool

// Viewport the composited scene is presented in.
const (
	viewportWidth  = 800
	viewportHeight = 600
)

var loadCmd = &cobra.Command{
	Use:   "load <puppet>...",
	Short: "Load puppets, run frames and print a summary",
	Long: `Loads each puppet, runs the configured number of update/draw frames inside
a scene and reports the outcome per puppet. A puppet that fails to load is
reported with the native error and does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().Int("frames", 60, "frames to run per puppet")
	loadCmd.Flags().BoolVar(&loadFromMemory, "memory", false, "read files into memory and load them from the buffer")
	_ = viper.BindPFlag("frames", loadCmd.Flags().Lookup("frames"))
}

// puppetSummary is one row of load output.
type puppetSummary struct {
	Name       string `json:"name"`
	Handle     uint32 `json:"handle,omitempty"`
	NativeName string `json:"native_name,omitempty"`
	Frames     int    `json:"frames"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	var puppets []*runtime.Puppet
	var rows []puppetSummary
	for _, path := range args {
		p, err := loadPuppet(ctx, sess.inst, path, loadFromMemory)
		if err != nil {
			rows = append(rows, puppetSummary{Name: path, Status: "failed", Error: err.Error()})
			continue
		}
		puppets = append(puppets, p)
		rows = append(rows, puppetSummary{Name: p.Name(), Handle: uint32(p.Handle()), Status: "live"})
	}

	frames := runFrames(ctx, sess.inst, puppets, sess.settings.Frames)

	i := 0
	for r := range rows {
		if rows[r].Status == "failed" {
			continue
		}
		p := puppets[i]
		i++
		rows[r].Frames = frames[p]
		if sess.inst.Capabilities().Has(inochi2d.CapPuppetName) {
			if name, err := p.NativeName(ctx); err == nil {
				rows[r].NativeName = name
			}
		}
		if err := p.Close(ctx); err != nil {
			rows[r].Status = "release failed"
			rows[r].Error = err.Error()
			continue
		}
		if rows[r].Frames < sess.settings.Frames {
			rows[r].Status = "stalled"
		} else {
			rows[r].Status = "ok"
		}
	}

	return writeSummary(cmd.OutOrStdout(), rows, sess.settings.Output)
}

func loadPuppet(ctx context.Context, inst *runtime.Instance, path string, fromMemory bool) (*runtime.Puppet, error) {
	if !fromMemory {
		return runtime.LoadFromPath(ctx, inst, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return runtime.LoadFromMemory(ctx, inst, data, path)
}

// runFrames steps every puppet n times and returns how many frames each
// completed. A puppet stops at its first failed frame.
func runFrames(ctx context.Context, inst *runtime.Instance, puppets []*runtime.Puppet, n int) map[*runtime.Puppet]int {
	done := make(map[*runtime.Puppet]int, len(puppets))
	failed := make(map[*runtime.Puppet]bool, len(puppets))
	render := inst.Capabilities().Has(inochi2d.CapRender)

	for frame := 0; frame < n; frame++ {
		var scene *runtime.Scene
		if render {
			s, err := inst.BeginScene(ctx)
			if err == nil {
				scene = s
			}
		}
		for _, p := range puppets {
			if failed[p] {
				continue
			}
			if err := stepPuppet(ctx, p, render); err != nil {
				failed[p] = true
				continue
			}
			done[p]++
		}
		if scene != nil {
			_ = scene.End(ctx)
			_ = scene.Draw(ctx, 0, 0, viewportWidth, viewportHeight)
		}
	}
	return done
}

func stepPuppet(ctx context.Context, p *runtime.Puppet, render bool) error {
	if err := p.Update(ctx); err != nil {
		return err
	}
	if render {
		return p.Draw(ctx)
	}
	return nil
}

func writeSummary(w io.Writer, rows []puppetSummary, format string) error {
	if format == "json" {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Puppet", "Handle", "Native Name", "Frames", "Status", "Error")
	for _, r := range rows {
		handle := "-"
		if r.Handle != 0 {
			handle = fmt.Sprintf("%d", r.Handle)
		}
		if err := table.Append(r.Name, handle, r.NativeName, fmt.Sprintf("%d", r.Frames), r.Status, r.Error); err != nil {
			return err
		}
	}
	return table.Render()
}
