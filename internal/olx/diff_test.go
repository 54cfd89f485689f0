package olx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPredicate(t *testing.T, cfg map[string]string) *filter.Options {
	t.Helper()
	p, err := filter.FromConfig(cfg)
	require.NoError(t, err)
	return p
}

func TestLoadDiff(t *testing.T) {
	path := writeFixture(t, "changes.adx", diffXML)
	d, err := LoadDiff(path, parser.ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, d.Path())
	assert.Len(t, d.Records(), 6)

	h := d.Header()
	assert.Equal(t, "a.olr", h.FileA)
	assert.Equal(t, "b.olr", h.FileB)
	assert.Equal(t, map[string]string{"AREAS": "1-2", "KVRANGE": "0-9999", "COMPEXTENT": "0"}, d.ComparisonConfig())

	pred, err := filter.FromConfig(d.ComparisonConfig())
	require.NoError(t, err)
	assert.True(t, pred.IsAllNetwork())
}

func TestLoadDiff_WrongRoot(t *testing.T) {
	path := writeFixture(t, "case.olx", caseXML)
	_, err := LoadDiff(path, parser.ParseOptions{})
	require.ErrorIs(t, err, models.ErrFormat)
	assert.Contains(t, err.Error(), "OLR-diff XML")

	_, err = LoadDiff(writeFixture(t, "junk.adx", "<ASPENOLX><OLXDIFF>"), parser.ParseOptions{})
	assert.ErrorIs(t, err, models.ErrFormat)
}

func TestReadDiffHeader(t *testing.T) {
	h, err := ReadDiffHeader(writeFixture(t, "changes.adx", diffXML))
	require.NoError(t, err)
	assert.Equal(t, "a.olr", h.FileA)
	assert.Equal(t, "1-2", h.Areas)

	_, err = ReadDiffHeader(writeFixture(t, "case.olx", caseXML))
	assert.ErrorIs(t, err, models.ErrFormat)
}

func TestChangeStatistics(t *testing.T) {
	d := loadDiff(t, diffXML)

	s, err := d.ChangeStatistics(models.ActionAdd, models.ObjBus)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)

	s, err = d.ChangeStatistics(models.ActionDelete, models.ObjBus)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Count)

	s, err = d.ChangeStatistics("", models.ObjGen)
	require.NoError(t, err)
	assert.Equal(t, map[models.Action]int{models.ActionAdd: 0, models.ActionModify: 1, models.ActionDelete: 0}, s.Breakdown)

	s, err = d.ChangeStatistics(models.ActionAdd, "")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count)

	s, err = d.ChangeStatistics("", "")
	require.NoError(t, err)
	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 1, s.Raw["LTC_ADD"])

	_, err = d.ChangeStatistics("", "TRANSFORMER")
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "XFMR3")

	_, err = d.ChangeStatistics("RENAME", models.ObjBus)
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "MODIFY")
}

func TestStatistics_FromCountedRecords(t *testing.T) {
	d := loadDiff(t, diffXML)
	counts := CountChanges(d.Records())
	assert.Equal(t, 1, counts["LINE_DEL"])

	s, err := Statistics(counts, "", models.ObjBreaker)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Breakdown[models.ActionModify])

	_, err = Statistics(counts, "", "NOPE")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestFilterRecords(t *testing.T) {
	d := loadDiff(t, diffXML)

	assert.Equal(t, []bool{true, true, true, true, true, true}, d.FilterRecords(nil))

	area1 := mustPredicate(t, map[string]string{"AREAS": "1", "COMPEXTENT": "2", "COMPTIES": "1"})
	assert.Equal(t, []bool{true, true, false, true, false, false}, d.FilterRecords(area1),
		"ZCORRECT is cleared without a selected transformer")

	area2 := mustPredicate(t, map[string]string{"AREAS": "2", "COMPEXTENT": "2", "COMPTIES": "0"})
	assert.Equal(t, []bool{false, false, true, false, false, true}, d.FilterRecords(area2))

	adds := mustPredicate(t, map[string]string{"ACTIONS": "ADD"})
	assert.Equal(t, []bool{true, false, false, false, false, true}, d.FilterRecords(adds))
}

const xfmrDiff = `<ASPENOLX><OLXDIFF>
<CHANGEREC ACTION="MODIFY" OBJTYPE="XFMR" OBJGUID="{X1}"><OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="1"/></OBJSCOPE></CHANGEREC>
<CHANGEREC ACTION="ADD" OBJTYPE="ZCORRECT" OBJGUID="{Z1}"><OBJSCOPE><SCOPEFIELD NAME="AREA" VALUE="1"/></OBJSCOPE></CHANGEREC>
<CHANGEREC ACTION="ADD" OBJTYPE="GEN" OBJGUID="{G9}"/>
</OLXDIFF></ASPENOLX>`

func TestFilterRecords_ZCorrectWithTransformer(t *testing.T) {
	d := loadDiff(t, xfmrDiff)
	area1 := mustPredicate(t, map[string]string{"AREAS": "1", "COMPEXTENT": "2"})
	assert.Equal(t, []bool{true, true, false}, d.FilterRecords(area1), "missing scope never matches a restricted filter")

	noXfmr := mustPredicate(t, map[string]string{"COMPXFMR": "0"})
	assert.Equal(t, []bool{false, false, false}, d.FilterRecords(noXfmr))
}

func TestChangeFields_ActionShape(t *testing.T) {
	d := loadDiff(t, diffXML)
	for _, r := range d.Records() {
		n := 0
		for _, a := range models.Actions {
			if r.Action() == a {
				n++
			}
		}
		require.Equal(t, 1, n, r.GUID())

		for _, cf := range r.ChangeFields() {
			switch r.Action() {
			case models.ActionDelete:
				assert.True(t, cf.HasBefore && !cf.HasAfter, cf.Name)
			case models.ActionAdd:
				assert.True(t, !cf.HasBefore && cf.HasAfter, cf.Name)
			case models.ActionModify:
				assert.True(t, cf.HasBefore && cf.HasAfter, cf.Name)
			}
		}
	}
}

func TestBuildDiffModel(t *testing.T) {
	d := loadDiff(t, diffXML)
	m := d.BuildDiffModel(loadCase(t))

	assert.Len(t, m.Add, 3)
	assert.Len(t, m.Delete, 1)
	assert.Len(t, m.ForwardModify, 2)
	assert.Len(t, m.ReverseModify, 2)
	assert.Equal(t, 8, m.Len())

	t.Run("delete keeps before values and reconciles stale GUIDs", func(t *testing.T) {
		e := m.Delete["{L1}"]
		require.NotNil(t, e)
		assert.Equal(t, "0.01", e.Fields["R"])
		assert.Equal(t, "{B1}", e.Fields["BUSGUID1"])
		assert.Equal(t, "101", e.Fields["BUSNO1"])
		assert.Equal(t, "{B2}", e.Fields["BUSGUID2"])
		assert.Equal(t, "1,2", e.Fields["AREA"])
		assert.Empty(t, e.Unresolved)
	})

	t.Run("modify splits before and after", func(t *testing.T) {
		assert.Equal(t, "20", m.ForwardModify["{G1}"].Fields["PGEN"])
		assert.Equal(t, "10", m.ReverseModify["{G1}"].Fields["PGEN"])
	})

	t.Run("add keeps after values", func(t *testing.T) {
		e := m.Add["{B3}"]
		require.NotNil(t, e)
		assert.Equal(t, "1", e.Fields["AREANO"])
		assert.Equal(t, []string{"BUSNAME1=UTAH 69kV"}, e.Unresolved, "a new bus is not in the reference case")
	})

	t.Run("list fields reconcile per reference", func(t *testing.T) {
		rev := m.ReverseModify["{K1}"]
		require.Len(t, rev.Lists[FieldBreakerLs1], 1)
		assert.Equal(t, "{B1}", rev.Lists[FieldBreakerLs1][0].Get("BUSGUID1"))
		assert.Empty(t, rev.Unresolved)

		fwd := m.ForwardModify["{K1}"]
		assert.Equal(t, "MARS", fwd.Lists[FieldBreakerLs1][0].Get("BUSNAME1"))
		assert.Equal(t, []string{"BK_OBJLST1[0].BUSNAME1=MARS 132kV"}, fwd.Unresolved)
	})

	t.Run("source document is not modified", func(t *testing.T) {
		assert.Equal(t, "{STALE}", d.Records()[1].Conn("BUSGUID1"))
		var out bytes.Buffer
		require.NoError(t, d.ExportFull(&out))
		assert.Contains(t, out.String(), `VALUE="{OLD}"`)
	})

	t.Run("LTC records get synthetic keys", func(t *testing.T) {
		var ltc *ModelEntry
		for k, e := range m.Add {
			if e.ObjType == models.ObjLTC {
				ltc = e
				assert.NotEqual(t, "{T1}", k)
				assert.Len(t, k, 26)
			}
		}
		require.NotNil(t, ltc)
		assert.Equal(t, "{T1}", ltc.GUID)
	})

	t.Run("without a reference nothing is reconciled", func(t *testing.T) {
		m := d.BuildDiffModel(nil)
		assert.Equal(t, "{STALE}", m.Delete["{L1}"].Fields["BUSGUID1"])
		assert.Empty(t, m.Delete["{L1}"].Unresolved)
	})
}

func TestDiff_ExportFull_RoundTrip(t *testing.T) {
	d := loadDiff(t, diffXML)
	var out bytes.Buffer
	require.NoError(t, d.ExportFull(&out))
	assert.Equal(t, diffXML, out.String())
}

func TestDiff_ExportFiltered(t *testing.T) {
	d := loadDiff(t, diffXML)
	area2 := mustPredicate(t, map[string]string{"AREAS": "2", "COMPEXTENT": "2", "COMPTIES": "0"})
	mask := d.FilterRecords(area2)

	var out bytes.Buffer
	require.NoError(t, d.ExportFiltered(mask, &out))

	got := loadDiff(t, out.String())
	require.Len(t, got.Records(), 2)
	assert.Equal(t, "{G1}", got.Records()[0].GUID())
	assert.Equal(t, "{T1}", got.Records()[1].GUID())
	assert.Equal(t, d.Header().FileA, got.Header().FileA)

	s, err := got.ChangeStatistics("", "")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, s.Raw["GEN_MOD"])
	assert.Equal(t, 0, s.Raw["BUS_ADD"])
	assert.Contains(t, out.String(), `<CHANGESTAT BUS_ADD="0" LINE_DEL="0" GEN_MOD="1" BREAKER_MOD="0" ZCORRECT_ADD="0" LTC_ADD="1"/>`)

	err = d.ExportFiltered(mask[:2], &out)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestDiff_ExportFiltered_NoStatBlock(t *testing.T) {
	d := loadDiff(t, xfmrDiff)
	var out bytes.Buffer
	require.NoError(t, d.ExportFiltered([]bool{true, false, true}, &out))
	s := out.String()
	assert.Contains(t, s, `<CHANGESTAT GEN_ADD="1" XFMR_MOD="1"/>`)
	assert.Less(t, strings.Index(s, "CHANGESTAT"), strings.Index(s, "CHANGEREC"))
}
