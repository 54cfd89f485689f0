package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/docopt/docopt-go"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCase = `<ASPENOLXDB OLRVERSION="15.4" DATETIME="2024-03-01 10:00">
  <SYSTEMPARAMS BASEMVA="100"/>
  <OLXDBTABLE NAME="BUS" RECCOUNT="2">
    <OLXREC OBJTYPE="BUS" OBJGUID="{B1}">
      <OLNET><OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/></OLNET>
      <DATAFIELD VALUE="1" NAME="AREANO"/>
    </OLXREC>
    <OLXREC OBJTYPE="BUS" OBJGUID="{B2}">
      <OLNET><OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/></OLNET>
      <DATAFIELD VALUE="2" NAME="AREANO"/>
    </OLXREC>
  </OLXDBTABLE>
</ASPENOLXDB>
`

const sampleDiff = `<ASPENOLX>
  <OLXDIFF FILEA="a.olr" FILEB="b.olr" AREAS="2" COMPEXTENT="2">
    <CHANGESTAT BUS_ADD="1" GEN_DEL="1"/>
    <CHANGEREC ACTION="ADD" OBJTYPE="BUS" OBJGUID="{B3}">
      <OLNET OBJTYPE="BUS"><OLNETFIELD NAME="BUSNAME1" VALUE="UTAH"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/></OLNET>
      <OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="1"/><SCOPEFIELD NAME="KV" VALUE="132"/></OBJSCOPE>
    </CHANGEREC>
    <CHANGEREC ACTION="DELETE" OBJTYPE="GEN" OBJGUID="{G1}">
      <OLNET OBJTYPE="GEN"><OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/></OLNET>
      <OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="2"/><SCOPEFIELD NAME="KV" VALUE="132"/></OBJSCOPE>
      <CHANGEFIELD LABEL="P" NAME="PGEN" VALUE="10"/>
    </CHANGEREC>
  </OLXDIFF>
</ASPENOLX>
`

func writeSample(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func run(t *testing.T, fn func(docopt.Opts, io.Writer) error, args ...string) (string, error) {
	t.Helper()
	opts, err := docopt.ParseArgs(usage, args, Version)
	require.NoError(t, err)
	var out bytes.Buffer
	err = fn(opts, &out)
	return out.String(), err
}

func TestCaseInfo(t *testing.T) {
	out, err := run(t, caseInfo, "case-info", writeSample(t, "net.olx", sampleCase))
	require.NoError(t, err)
	assert.Contains(t, out, "Version:   15.4")
	assert.Contains(t, out, "BASEMVA")
	assert.Regexp(t, `BUS\s+2`, out)
}

func TestCaseFilter(t *testing.T) {
	cfg := writeSample(t, "scope.yaml", "AREAS: \"2\"\nCOMPEXTENT: \"2\"\n")
	export := filepath.Join(t.TempDir(), "out.olx")

	out, err := run(t, caseFilter, "case-filter", writeSample(t, "net.olx", sampleCase), cfg, "--out="+export)
	require.NoError(t, err)
	assert.Contains(t, out, "'OHIO' 132kV")
	assert.NotContains(t, out, "NEVADA")

	data, err := os.ReadFile(export)
	require.NoError(t, err)
	assert.Contains(t, string(data), "{B2}")
	assert.NotContains(t, string(data), "{B1}")
}

func TestDiffStats(t *testing.T) {
	path := writeSample(t, "changes.adx", sampleDiff)

	out, err := run(t, diffStats, "diff-stats", path, "--type=bus")
	require.NoError(t, err)
	assert.Contains(t, out, "a.olr -> b.olr")
	assert.Regexp(t, `ADD\s+1`, out)

	_, err = run(t, diffStats, "diff-stats", path, "--type=widget")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestDiffFilter(t *testing.T) {
	path := writeSample(t, "changes.adx", sampleDiff)

	for _, successive := range []bool{false, true} {
		args := []string{"diff-filter", path, "--header-scope"}
		if successive {
			args = append(args, "--successive")
		}
		out, err := run(t, diffFilter, args...)
		require.NoError(t, err)
		assert.Contains(t, out, "GEN 'OHIO' 132kV", "successive=%v", successive)
		assert.NotContains(t, out, "UTAH", "successive=%v", successive)
		assert.Regexp(t, `GEN_DEL\s+1`, out)
	}
}

func TestDiffFilter_NotADiff(t *testing.T) {
	_, err := run(t, diffFilter, "diff-filter", writeSample(t, "net.olx", sampleCase))
	assert.ErrorIs(t, err, models.ErrFormat)
}

func TestDiffModel(t *testing.T) {
	out, err := run(t, diffModel, "diff-model", writeSample(t, "changes.adx", sampleDiff),
		"--ref="+writeSample(t, "net.olx", sampleCase))
	require.NoError(t, err)
	assert.Contains(t, out, `"add"`)
	assert.Contains(t, out, "{G1}")
}
