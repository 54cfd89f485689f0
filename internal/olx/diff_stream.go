package olx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
)

// DefaultBatchSize caps a run of same (action, type) records before it is flushed.
const DefaultBatchSize = 512

// Batch is a run of consecutive matching records sharing action and type.
type Batch struct {
	Action  models.Action
	ObjType string
	// Indexes are the zero-based record positions in the file.
	Indexes []int
	Records []*Record
}

// RecordSink receives matching records in batches while a diff streams.
type RecordSink interface {
	WriteBatch(b *Batch) error
}

// StreamOptions configures ProcessSuccessively.
type StreamOptions struct {
	// Predicate selects records; nil selects everything.
	Predicate *filter.Options
	// OnRecord sees every record with its final result. ZCORRECT records
	// arrive at the end of the stream, after transformers are known.
	OnRecord func(index int, rec *Record, matched bool) error
	// Export, when set, receives the matching records as a diff document.
	// Its CHANGESTAT is left out since the counts are only known at the end.
	Export io.Writer
	Sink   RecordSink
	// BatchSize overrides DefaultBatchSize.
	BatchSize int

	Label         string
	SizeHint      int64
	ProgressEvery int
	OnProgress    parser.ProgressCallback
}

// StreamResult summarizes a streamed diff.
type StreamResult struct {
	Header  DiffHeader
	Total   int
	Matched int
	// Stats counts matching records per CHANGESTAT key.
	Stats map[string]int
}

type streamState uint8

const (
	stateIdle streamState = iota
	stateAccumulating
	stateFinished
)

// successive is the state of one ProcessSuccessively run. Only the record
// being folded, the open batch and deferred ZCORRECT matches are retained.
type successive struct {
	opts  StreamOptions
	pred  *filter.Options
	state streamState
	fold  *parser.Folder
	xw    *parser.Writer

	sawRoot  bool
	sawBody  bool
	index    int
	xfmr     bool
	deferred []pending
	run      *Batch
	result   *StreamResult
}

// ProcessSuccessively streams a diff one CHANGEREC at a time, so memory does
// not grow with the number of records. The per-record decisions equal those
// of LoadDiff followed by FilterRecords.
func ProcessSuccessively(r io.Reader, opts StreamOptions) (*StreamResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = parser.DefaultProgressEvery
	}
	if opts.Label == "" {
		opts.Label = "diff stream"
	}
	p := &successive{
		opts:   opts,
		pred:   opts.Predicate,
		fold:   parser.NewFolder(),
		result: &StreamResult{Stats: make(map[string]int)},
	}
	if p.pred == nil {
		p.pred = filter.Default()
	}
	if opts.Export != nil {
		p.xw = parser.NewWriter(opts.Export)
	}

	tr := parser.NewTokenReader(r, opts.Label)
	for p.state != stateFinished {
		tok, err := tr.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := p.step(tok); err != nil {
			return nil, err
		}
		if p.state == stateIdle && p.index > 0 && p.index%opts.ProgressEvery == 0 && p.lastWasRecord(tok) {
			if opts.OnProgress != nil {
				opts.OnProgress(p.index, tr.InputOffset(), opts.SizeHint)
			}
			glog.V(1).Infof("[Stream] %s: %d records, %d matched", opts.Label, p.index, p.result.Matched)
		}
	}

	if !p.sawRoot || !p.sawBody {
		return nil, &models.FormatError{Path: opts.Label, Expected: diffExpected, Err: errors.New("no diff body found")}
	}
	if p.state != stateFinished {
		return nil, &models.FormatError{Path: opts.Label, Expected: diffExpected, Err: io.ErrUnexpectedEOF}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(p.index, tr.InputOffset(), opts.SizeHint)
	}
	return p.result, nil
}

// ProcessSuccessivelyFile opens path (gzip aware) and streams it.
func ProcessSuccessivelyFile(path string, opts StreamOptions) (*StreamResult, error) {
	src, err := parser.OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	if opts.Label == "" {
		opts.Label = path
	}
	if opts.SizeHint == 0 {
		opts.SizeHint = src.Size
	}
	return ProcessSuccessively(src, opts)
}

func (p *successive) lastWasRecord(tok xml.Token) bool {
	end, ok := tok.(xml.EndElement)
	return ok && end.Name.Local == "CHANGEREC"
}

// step advances the state machine by one token.
func (p *successive) step(tok xml.Token) error {
	switch p.state {
	case stateIdle:
		switch t := tok.(type) {
		case xml.StartElement:
			return p.idleStart(t)
		case xml.EndElement:
			if t.Name.Local == parser.DiffRootTag {
				return p.finish()
			}
		}
	case stateAccumulating:
		switch t := tok.(type) {
		case xml.StartElement:
			p.fold.Start(t)
		case xml.CharData:
			p.fold.CharData(t)
		case xml.EndElement:
			node, done := p.fold.End()
			if done {
				p.state = stateIdle
				return p.record(node)
			}
		}
	}
	return nil
}

func (p *successive) idleStart(t xml.StartElement) error {
	name := t.Name.Local
	if !p.sawRoot {
		if name != parser.DiffRootTag {
			return &models.FormatError{Path: p.opts.Label, Expected: diffExpected, Err: fmt.Errorf("root element is <%s>", name)}
		}
		p.sawRoot = true
		if p.xw != nil {
			p.xw.Header()
			p.xw.Start(name, attrsOf(t)...)
		}
		return nil
	}
	switch name {
	case parser.DiffBodyTag:
		p.sawBody = true
		p.result.Header = headerFromAttrs(attrsOf(t))
		if p.xw != nil {
			p.xw.Start(name, attrsOf(t)...)
		}
	case "CHANGEREC":
		p.fold.Start(t)
		p.state = stateAccumulating
	}
	return nil
}

func attrsOf(t xml.StartElement) []models.Attr {
	out := make([]models.Attr, len(t.Attr))
	for i, a := range t.Attr {
		out[i] = models.Attr{Name: a.Name.Local, Value: a.Value}
	}
	return out
}

// record handles one completed CHANGEREC.
func (p *successive) record(node *models.Node) error {
	rec := NewRecord(node)
	idx := p.index
	p.index++
	p.result.Total++

	matched := p.pred.Matches(diffScope(rec))
	if rec.ObjType() == models.ObjZCorrect && matched && !p.pred.IsAllNetwork() {
		// Decided in finish, once it is known whether any transformer matched.
		p.deferred = append(p.deferred, pending{idx, rec})
		return nil
	}
	if matched && isTransformer(rec.ObjType()) {
		p.xfmr = true
	}
	return p.emit(idx, rec, matched)
}

type pending struct {
	index int
	rec   *Record
}

func (p *successive) emit(idx int, rec *Record, matched bool) error {
	if p.opts.OnRecord != nil {
		if err := p.opts.OnRecord(idx, rec, matched); err != nil {
			return err
		}
	}
	if !matched {
		return nil
	}
	p.result.Matched++
	if a := rec.Action(); a.Valid() {
		p.result.Stats[StatKey(rec.ObjType(), a)]++
	}

	if p.run != nil && (p.run.Action != rec.Action() || p.run.ObjType != rec.ObjType() || len(p.run.Records) >= p.opts.BatchSize) {
		if err := p.flush(); err != nil {
			return err
		}
	}
	if p.run == nil {
		p.run = &Batch{Action: rec.Action(), ObjType: rec.ObjType()}
	}
	p.run.Indexes = append(p.run.Indexes, idx)
	p.run.Records = append(p.run.Records, rec)
	return nil
}

// flush hands the open run to the export writer and the sink.
func (p *successive) flush() error {
	b := p.run
	p.run = nil
	if b == nil || len(b.Records) == 0 {
		return nil
	}
	glog.V(2).Infof("[Stream] flush %s %s run of %d\n", b.Action, b.ObjType, len(b.Records))
	if p.xw != nil {
		for _, r := range b.Records {
			p.xw.Node("CHANGEREC", r.node)
		}
	}
	if p.opts.Sink != nil {
		if err := p.opts.Sink.WriteBatch(b); err != nil {
			return fmt.Errorf("writing %s %s batch: %w", b.Action, b.ObjType, err)
		}
	}
	return nil
}

// finish resolves deferred ZCORRECT records and flushes the last run.
func (p *successive) finish() error {
	for _, d := range p.deferred {
		if err := p.emit(d.index, d.rec, p.xfmr); err != nil {
			return err
		}
	}
	p.deferred = nil
	if err := p.flush(); err != nil {
		return err
	}
	if p.xw != nil {
		if p.sawBody {
			p.xw.End(parser.DiffBodyTag)
		}
		p.xw.End(parser.DiffRootTag)
		if err := p.xw.Flush(); err != nil {
			return err
		}
	}
	p.state = stateFinished
	return nil
}
