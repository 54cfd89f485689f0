package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/parser"
	"github.com/olx-analyzer/backend/internal/report"
)

const Version = "0.1.0"

const usage = `OLX case and comparison toolkit.

Usage:
    olxctl case-info <case>
    olxctl case-filter <case> <config> [--out=<path>] [--all]
    olxctl diff-stats <diff> [--action=<action>] [--type=<type>]
    olxctl diff-filter <diff> [<config>] [--header-scope] [--successive] [--out=<path>] [--brief]
    olxctl diff-model <diff> [--ref=<case>]
    olxctl -h | --help
    olxctl --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --out=<path>         Write the selected records as a new OLX or ADX file.
    --all                List every record, not only the matching ones.
    --action=<action>    ADD, DELETE or MODIFY.
    --type=<type>        Object type, for example LINE or XFMR3.
    --header-scope       Filter with the scope stored in the comparison header.
    --successive         Stream the comparison record by record.
    --brief              Omit the field changes under each record.
    --ref=<case>         Case used to reconcile terminal GUIDs and bus numbers.`

func main() {
	// glog flags are left at their defaults; the CLI owns os.Args.
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		fail(err)
	}

	cmds := map[string]func(docopt.Opts, io.Writer) error{
		"case-info":   caseInfo,
		"case-filter": caseFilter,
		"diff-stats":  diffStats,
		"diff-filter": diffFilter,
		"diff-model":  diffModel,
	}
	for name, run := range cmds {
		if on, _ := opts.Bool(name); on {
			if err := run(opts, os.Stdout); err != nil {
				fail(err)
			}
			return
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if errors.Is(err, models.ErrFormat) || errors.Is(err, models.ErrInvalidArgument) {
		fmt.Fprintf(os.Stderr, "\n%s\n", usage)
	}
	glog.Flush()
	os.Exit(1)
}

func str(opts docopt.Opts, key string) string {
	s, _ := opts.String(key)
	return s
}

func flagOn(opts docopt.Opts, key string) bool {
	on, _ := opts.Bool(key)
	return on
}

func caseInfo(opts docopt.Opts, w io.Writer) error {
	c, err := olx.OpenCase(str(opts, "<case>"), parser.ParseOptions{})
	if err != nil {
		return err
	}
	h := c.Header()
	fmt.Fprintf(w, "Version:   %s\n", h.Version)
	fmt.Fprintf(w, "Timestamp: %s\n", h.Timestamp)
	if h.Comments != "" {
		fmt.Fprintf(w, "Comments:  %s\n", h.Comments)
	}
	keys := make([]string, 0, len(h.SystemParams))
	for k := range h.SystemParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-14s %s\n", k, h.SystemParams[k])
	}
	fmt.Fprintln(w)
	for _, name := range c.TableNames() {
		fmt.Fprintf(w, "%-16s %d\n", name, len(c.Records(name)))
	}
	return nil
}

func caseFilter(opts docopt.Opts, w io.Writer) error {
	c, err := olx.OpenCase(str(opts, "<case>"), parser.ParseOptions{})
	if err != nil {
		return err
	}
	pred, err := filter.LoadConfig(str(opts, "<config>"))
	if err != nil {
		return err
	}

	all := flagOn(opts, "--all")
	selected, flags := c.FilteredData(pred, !all)
	rep := report.New(w, report.StyleFor(pred), !color.NoColor).Fields(false)
	counts := make(map[string]int)
	for _, name := range c.TableNames() {
		for i, ok := range flags[name] {
			if ok {
				counts[name]++
			}
			if ok || all {
				if err := rep.Write(c.Records(name)[i]); err != nil {
					return err
				}
			}
		}
	}
	fmt.Fprintf(w, "\nFilter: %s\n", strings.Join(pred.Summary(), "; "))
	if err := rep.Summary(counts); err != nil {
		return err
	}

	if out := str(opts, "--out"); out != "" {
		if all {
			selected, _ = c.FilteredData(pred, true)
		}
		return c.ExportFilteredFile(selected, out)
	}
	return nil
}

func diffStats(opts docopt.Opts, w io.Writer) error {
	d, err := olx.LoadDiff(str(opts, "<diff>"), parser.ParseOptions{})
	if err != nil {
		return err
	}
	h := d.Header()
	action := models.Action(strings.ToUpper(str(opts, "--action")))
	objType := strings.ToUpper(str(opts, "--type"))
	res, err := d.ChangeStatistics(action, objType)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s -> %s\n", h.FileA, h.FileB)
	switch {
	case res.Raw != nil:
		return report.New(w, report.Style{}, !color.NoColor).Summary(res.Raw)
	case res.Breakdown != nil:
		for _, a := range models.Actions {
			fmt.Fprintf(w, "%-8s %d\n", a, res.Breakdown[a])
		}
	}
	fmt.Fprintf(w, "%-8s %d\n", "TOTAL", res.Count)
	return nil
}

func diffPredicate(opts docopt.Opts, header olx.DiffHeader) (*filter.Options, error) {
	if path := str(opts, "<config>"); path != "" {
		return filter.LoadConfig(path)
	}
	if flagOn(opts, "--header-scope") {
		return filter.FromConfig(header.ComparisonConfig())
	}
	return filter.Default(), nil
}

func diffFilter(opts docopt.Opts, w io.Writer) error {
	path := str(opts, "<diff>")
	header, err := olx.ReadDiffHeader(path)
	if err != nil {
		return err
	}
	pred, err := diffPredicate(opts, header)
	if err != nil {
		return err
	}
	rep := report.New(w, report.StyleFor(pred), !color.NoColor).Fields(!flagOn(opts, "--brief"))

	var stats map[string]int
	if flagOn(opts, "--successive") {
		sopts := olx.StreamOptions{Predicate: pred, OnRecord: rep.OnRecord}
		if out := str(opts, "--out"); out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			sopts.Export = f
		}
		res, err := olx.ProcessSuccessivelyFile(path, sopts)
		if err != nil {
			return err
		}
		stats = res.Stats
	} else {
		d, err := olx.LoadDiff(path, parser.ParseOptions{})
		if err != nil {
			return err
		}
		mask := d.FilterRecords(pred)
		var kept []*olx.Record
		for i, ok := range mask {
			if !ok {
				continue
			}
			kept = append(kept, d.Records()[i])
			if err := rep.Write(d.Records()[i]); err != nil {
				return err
			}
		}
		stats = olx.CountChanges(kept)
		if out := str(opts, "--out"); out != "" {
			if err := d.ExportFilteredFile(mask, out); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(w, "\nFilter: %s\n", strings.Join(pred.Summary(), "; "))
	return rep.Summary(stats)
}

func diffModel(opts docopt.Opts, w io.Writer) error {
	d, err := olx.LoadDiff(str(opts, "<diff>"), parser.ParseOptions{})
	if err != nil {
		return err
	}
	var ref *olx.Case
	if path := str(opts, "--ref"); path != "" {
		if ref, err = olx.OpenCase(path, parser.ParseOptions{}); err != nil {
			return err
		}
	}
	model := d.BuildDiffModel(ref)
	glog.V(1).Infof("[Export] diff model with %d entries", model.Len())

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(model)
}
