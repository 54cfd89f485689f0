package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/olx"
	"github.com/olx-analyzer/backend/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const diffSrc = `<ASPENOLX><OLXDIFF>
  <CHANGEREC ACTION="DELETE" OBJTYPE="LINE" OBJGUID="{L1}">
    <OLNET>
      <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/><OLNETFIELD NAME="BUSNO1" VALUE="101"/>
      <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/><OLNETFIELD NAME="BUSKV2" VALUE="132"/><OLNETFIELD NAME="BUSNO2" VALUE="102"/>
      <OLNETFIELD NAME="CKTID" VALUE="1"/>
    </OLNET>
    <CHANGEFIELD LABEL="R" NAME="R" VALUE="0.01"/>
  </CHANGEREC>
  <CHANGEREC ACTION="MODIFY" OBJTYPE="GEN" OBJGUID="{G1}">
    <OLNET><OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/><OLNETFIELD NAME="BUSKV1" VALUE="132"/></OLNET>
    <CHANGEFIELD LABEL="P" NAME="PGEN" VALUEA="10" VALUEB="20"/>
  </CHANGEREC>
  <CHANGEREC ACTION="ADD" OBJTYPE="AREA" OBJGUID="{A9}"/>
</OLXDIFF></ASPENOLX>`

func records(t *testing.T) []*olx.Record {
	t.Helper()
	doc, err := parser.ParseDocument(strings.NewReader(diffSrc), parser.ParseOptions{})
	require.NoError(t, err)
	d, err := olx.NewDiff(doc)
	require.NoError(t, err)
	return d.Records()
}

func TestStyle_Describe(t *testing.T) {
	recs := records(t)

	tests := []struct {
		name  string
		style Style
		want  []string
	}{
		{"names", Style{}, []string{
			"LINE 'NEVADA' 132kV - 'OHIO' 132kV ckt 1",
			"GEN 'OHIO' 132kV",
			"AREA {A9}",
		}},
		{"bus numbers", Style{BusNumber: true}, []string{
			"LINE 101 'NEVADA' 132kV - 102 'OHIO' 132kV ckt 1",
			"GEN 'OHIO' 132kV",
			"AREA {A9}",
		}},
		{"anafas", Style{Anafas: true}, []string{
			"LINE 00101 - 00102 ckt 1",
			"GEN 'OHIO' 132kV",
			"AREA {A9}",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, rec := range recs {
				assert.Equal(t, tt.want[i], tt.style.Describe(rec))
			}
		})
	}
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, Style{}, StyleFor(nil))

	opts, err := filter.FromConfig(map[string]string{filter.KeyUseBusNo: "1", filter.KeyAnafasFormat: "1"})
	require.NoError(t, err)
	assert.Equal(t, Style{BusNumber: true, Anafas: true}, StyleFor(opts))
}

func TestReporter_Write(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Style{}, false)
	for _, rec := range records(t) {
		require.NoError(t, r.Write(rec))
	}
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, strings.Join([]string{
		"DELETE LINE 'NEVADA' 132kV - 'OHIO' 132kV ckt 1",
		"    R: 0.01",
		"MODIFY GEN 'OHIO' 132kV",
		"    P (PGEN): 10 -> 20",
		"ADD    AREA {A9}",
		"",
	}, "\n"), out.String())
}

func TestReporter_NoFields(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Style{}, false).Fields(false)
	require.NoError(t, r.Write(records(t)[1]))
	assert.Equal(t, "MODIFY GEN 'OHIO' 132kV\n", out.String())
}

func TestReporter_Colored(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Style{}, true).Fields(false)
	require.NoError(t, r.Write(records(t)[0]))
	assert.Contains(t, out.String(), "\x1b[31m")
}

func TestReporter_OnRecordSkipsUnmatched(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Style{}, false).Fields(false)
	recs := records(t)
	require.NoError(t, r.OnRecord(0, recs[0], false))
	require.NoError(t, r.OnRecord(1, recs[1], true))
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, "MODIFY GEN 'OHIO' 132kV\n", out.String())
}

func TestReporter_Summary(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Style{}, false)
	require.NoError(t, r.Summary(map[string]int{"LINE_DEL": 2, "BUS_ADD": 1}))
	assert.Equal(t, "BUS_ADD          1\nLINE_DEL         2\nTOTAL            3\n", out.String())
}
