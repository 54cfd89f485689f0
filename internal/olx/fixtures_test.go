package olx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/olx-analyzer/backend/internal/parser"
	"github.com/stretchr/testify/require"
)

// caseXML is laid out exactly as ExportFull writes it.
const caseXML = `<?xml version="1.0" encoding="UTF-8"?>
<ASPENOLXDB OLRVERSION="15.4" DATETIME="2024-03-01 10:00">
  <OBJCOUNT BUS="2" LINE="1" BREAKER="1"/>
  <UDFTEMPLATE>
    <OLRXOBJ OBJTYPE="BUS">
      <UDFIELD ROWNO="1" FNAME="OWNER" LABEL="Owner"/>
    </OLRXOBJ>
  </UDFTEMPLATE>
  <SYSTEMPARAMS BASEMVA="100">
    <FILECOMMENTS>test case &amp; more</FILECOMMENTS>
  </SYSTEMPARAMS>
  <OLXDBTABLE NAME="BUS" RECCOUNT="2">
    <OLXREC OBJTYPE="BUS" OLNETID="1" OBJGUID="{B1}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <DATAFIELD VALUE="1" NAME="AREANO"/>
      <DATAFIELD VALUE="10" NAME="ZONENO"/>
      <DATAFIELD VALUE="101" NAME="BUSNO"/>
    </OLXREC>
    <OLXREC OBJTYPE="BUS" OLNETID="2" OBJGUID="{B2}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <DATAFIELD VALUE="2" NAME="AREANO"/>
      <DATAFIELD VALUE="20" NAME="ZONENO"/>
      <DATAFIELD VALUE="102" NAME="BUSNO"/>
    </OLXREC>
  </OLXDBTABLE>
  <OLXDBTABLE NAME="LINE" RECCOUNT="1">
    <OLXREC OBJTYPE="LINE" OLNETID="3" OBJGUID="{L1}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
        <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV2" VALUE="132"/>
        <OLNETFIELD NAME="CKTID" VALUE="1"/>
      </OLNET>
      <DATAFIELD VALUE="0.01" NAME="R"/>
    </OLXREC>
  </OLXDBTABLE>
  <OLXDBTABLE NAME="BREAKER" RECCOUNT="1">
    <OLXREC OBJTYPE="BREAKER" OLNETID="4" OBJGUID="{K1}">
      <OLNET>
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <DATAFIELD NAME="BK_OBJLST1">
        <VALUE>
          <OLNET OBJTYPE="LINE">
            <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
            <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
            <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/>
            <OLNETFIELD NAME="BUSKV2" VALUE="132"/>
            <OLNETFIELD NAME="CKTID" VALUE="1"/>
          </OLNET>
        </VALUE>
      </DATAFIELD>
    </OLXREC>
  </OLXDBTABLE>
</ASPENOLXDB>
`

// diffXML is laid out exactly as ExportFull writes it.
const diffXML = `<?xml version="1.0" encoding="UTF-8"?>
<ASPENOLX>
  <OLXDIFF FILEA="a.olr" FILEB="b.olr" AREAS="1-2" KVRANGE="0-9999" COMPEXTENT="0">
    <CHANGESTAT BUS_ADD="1" LINE_DEL="1" GEN_MOD="1" BREAKER_MOD="1" ZCORRECT_ADD="1" LTC_ADD="1"/>
    <CHANGEREC ACTION="ADD" OBJTYPE="BUS" OLNETID="6" OBJGUID="{B3}">
      <OLNET OBJTYPE="BUS">
        <OLNETFIELD NAME="BUSNAME1" VALUE="UTAH"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="69"/>
      </OLNET>
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="1"/>
        <SCOPEFIELD NAME="KV" VALUE="69"/>
      </OBJSCOPE>
      <CHANGEFIELD LABEL="Area" NAME="AREANO" VALUE="1"/>
    </CHANGEREC>
    <CHANGEREC ACTION="DELETE" OBJTYPE="LINE" OLNETID="3" OBJGUID="{L1}">
      <OLNET OBJTYPE="LINE">
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
        <OLNETFIELD NAME="BUSGUID1" VALUE="{STALE}"/>
        <OLNETFIELD NAME="BUSNAME2" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV2" VALUE="132"/>
        <OLNETFIELD NAME="CKTID" VALUE="1"/>
      </OLNET>
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="1"/>
        <SCOPEFIELD NAME="AREA" VALUE="2"/>
        <SCOPEFIELD NAME="KV" VALUE="132"/>
        <SCOPEFIELD NAME="CKTID" VALUE="1"/>
      </OBJSCOPE>
      <CHANGEFIELD LABEL="R" NAME="R" VALUE="0.01"/>
    </CHANGEREC>
    <CHANGEREC ACTION="MODIFY" OBJTYPE="GEN" OLNETID="5" OBJGUID="{G1}">
      <OLNET OBJTYPE="GEN">
        <OLNETFIELD NAME="BUSNAME1" VALUE="OHIO"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="2"/>
        <SCOPEFIELD NAME="KV" VALUE="132"/>
      </OBJSCOPE>
      <CHANGEFIELD LABEL="P" NAME="PGEN" VALUEA="10" VALUEB="20"/>
    </CHANGEREC>
    <CHANGEREC ACTION="MODIFY" OBJTYPE="BREAKER" OLNETID="4" OBJGUID="{K1}">
      <OLNET OBJTYPE="BREAKER">
        <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
        <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
      </OLNET>
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="1"/>
        <SCOPEFIELD NAME="KV" VALUE="132"/>
      </OBJSCOPE>
      <CHANGEFIELD LABEL="Protected 1" NAME="BK_OBJLST1">
        <VALUEA>
          <OLNET OBJTYPE="LINE">
            <OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/>
            <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
            <OLNETFIELD NAME="BUSGUID1" VALUE="{OLD}"/>
          </OLNET>
        </VALUEA>
        <VALUEB>
          <OLNET OBJTYPE="LINE">
            <OLNETFIELD NAME="BUSNAME1" VALUE="MARS"/>
            <OLNETFIELD NAME="BUSKV1" VALUE="132"/>
          </OLNET>
        </VALUEB>
      </CHANGEFIELD>
    </CHANGEREC>
    <CHANGEREC ACTION="ADD" OBJTYPE="ZCORRECT" OLNETID="9" OBJGUID="{Z1}">
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="1"/>
      </OBJSCOPE>
    </CHANGEREC>
    <CHANGEREC ACTION="ADD" OBJTYPE="LTC" OLNETID="7" OBJGUID="{T1}">
      <OBJSCOPE>
        <SCOPEFIELD NAME="AREA" VALUE="2"/>
      </OBJSCOPE>
    </CHANGEREC>
  </OLXDIFF>
</ASPENOLX>
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func loadCase(t *testing.T) *Case {
	t.Helper()
	doc, err := parser.ParseDocument(strings.NewReader(caseXML), parser.ParseOptions{})
	require.NoError(t, err)
	c, err := NewCase(doc)
	require.NoError(t, err)
	return c
}

func loadDiff(t *testing.T, src string) *Diff {
	t.Helper()
	doc, err := parser.ParseDocument(strings.NewReader(src), parser.ParseOptions{})
	require.NoError(t, err)
	d, err := NewDiff(doc)
	require.NoError(t, err)
	return d
}
