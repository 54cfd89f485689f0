package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taggedSample = `<ASPENOLX>
  <OLXDIFF FILEA="a.olr" FILEB="b.olr">
    <CHANGESTAT BUS_ADD="1"/>
    <CHANGEREC ACTION="ADD" OBJTYPE="BUS" OBJGUID="{1}">
      <OLNET><OLNETFIELD NAME="BUSNAME1" VALUE="NEVADA"/></OLNET>
    </CHANGEREC>
    <CHANGEREC ACTION="DELETE" OBJTYPE="LINE" OBJGUID="{2}">
      <OLNET><OLNETFIELD NAME="BUSNAME1" VALUE="A"/><OLNETFIELD NAME="BUSNAME2" VALUE="B"/></OLNET>
    </CHANGEREC>
    <CHANGEREC ACTION="MODIFY" OBJTYPE="GEN" OBJGUID="{3}"/>
  </OLXDIFF>
</ASPENOLX>`

func TestTaggedIterator_YieldsEveryOccurrence(t *testing.T) {
	it := NewTaggedIterator(strings.NewReader(taggedSample), "CHANGEREC")

	var guids []string
	for it.Next() {
		guids = append(guids, it.Node().AttrOr("OBJGUID", ""))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"{1}", "{2}", "{3}"}, guids)
	assert.Equal(t, 3, it.Count())

	assert.False(t, it.Next(), "a consumed iterator does not restart")
}

func TestTaggedIterator_FoldsLikeParseDocument(t *testing.T) {
	it := NewTaggedIterator(strings.NewReader(taggedSample), "CHANGEREC")
	require.True(t, it.Next())
	require.True(t, it.Next())

	rec := it.Node()
	fields := rec.Path("OLNET").Children("OLNETFIELD")
	require.Len(t, fields, 2)
	assert.Equal(t, "B", fields[1].AttrOr("VALUE", ""))

	require.True(t, it.Next())
	assert.Equal(t, models.ElementNode, it.Node().Kind)
	assert.Empty(t, it.Node().Slots)
}

// countingReader counts bytes handed to the decoder.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	if len(p) > 64 {
		p = p[:64]
	}
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestTaggedIterator_IsLazy(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("<ROOT>")
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&b, `<ITEM N="%d"/>`, i)
	}
	b.WriteString("</ROOT>")
	total := b.Len()

	cr := &countingReader{r: &b}
	first, err := PeekTag(cr, "ITEM")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "0", first.AttrOr("N", ""))
	assert.Less(t, cr.n, total/2, "stopping early must leave the rest unread")
}

func TestTaggedIterator_NestedTarget(t *testing.T) {
	src := `<R><VALUE><OLNET><VALUE>inner</VALUE></OLNET></VALUE><VALUE>second</VALUE></R>`
	it := NewTaggedIterator(strings.NewReader(src), "VALUE")

	require.True(t, it.Next())
	outer := it.Node()
	assert.Equal(t, "inner", outer.Path("OLNET", "VALUE").String())

	require.True(t, it.Next())
	assert.Equal(t, models.TextNode, it.Node().Kind)
	assert.Equal(t, "second", it.Node().Text)

	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
}

func TestTaggedIterator_MalformedInput(t *testing.T) {
	it := NewTaggedIterator(strings.NewReader(`<R><CHANGEREC></R>`), "CHANGEREC")
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), models.ErrFormat)
}

func TestPeekTag_Missing(t *testing.T) {
	n, err := PeekTag(strings.NewReader(`<R><A/></R>`), "B")
	assert.NoError(t, err)
	assert.Nil(t, n)
}

func TestWriter_RoundTrip(t *testing.T) {
	src := `<ASPENOLXDB OLRVERSION="15.4">
  <SYSTEMPARAMS BASEMVA="100">
    <FILECOMMENTS>line one &amp; two</FILECOMMENTS>
  </SYSTEMPARAMS>
  <OLXDBTABLE NAME="BUS" RECCOUNT="2">
    <OLXREC OBJTYPE="BUS" OBJGUID="{1}"/>
    <OLXREC OBJTYPE="BUS" OBJGUID="{2}"/>
  </OLXDBTABLE>
  <EMPTY/>
</ASPENOLXDB>
`
	doc := parseString(t, src)

	var out bytes.Buffer
	w := NewWriter(&out)
	w.Node(RootTag(doc), doc.Path(RootTag(doc)))
	require.NoError(t, w.Flush())
	assert.Equal(t, src, out.String())

	again := parseString(t, out.String())
	assert.Equal(t, 2, again.Path(CaseRootTag, "OLXDBTABLE").Child("OLXREC").Len())
	assert.Equal(t, "line one & two", again.Path(CaseRootTag, "SYSTEMPARAMS", "FILECOMMENTS").String())
}

func TestWriter_EscapesAttributes(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out)
	w.Empty("F", A("NAME", `a<b "c"`)...)
	require.NoError(t, w.Flush())
	assert.Equal(t, `<F NAME="a&lt;b &#34;c&#34;"/>`+"\n", out.String())
}
