package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/common"
	"github.com/joseph-ayodele/video-insights/internal/llm"
	"github.com/joseph-ayodele/video-insights/internal/retry"
	"github.com/joseph-ayodele/video-insights/internal/stage"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

// SummarizeStage derives summary, tags, the screenshot flag and the custom
// fields from each transcript.
type SummarizeStage struct {
	store     *table.Store
	gen       llm.Generator
	genai     *retry.Client
	prompts   common.TranscriptPrompts
	minLength int
}

func NewSummarizeStage(store *table.Store, gen llm.Generator, genai *retry.Client, prompts common.TranscriptPrompts, minLength int) *SummarizeStage {
	return &SummarizeStage{store: store, gen: gen, genai: genai, prompts: prompts, minLength: minLength}
}

var (
	_ stage.Stage          = (*SummarizeStage)(nil)
	_ stage.ShortCircuiter = (*SummarizeStage)(nil)
)

func (s *SummarizeStage) Name() string  { return constants.StageSummarize }
func (s *SummarizeStage) Table() string { return constants.ProcessedTranscriptsTable }

func (s *SummarizeStage) Header() []string {
	h := []string{
		constants.ColFilename,
		constants.ColTranscription,
		constants.ColSummary,
		constants.ColTags,
		constants.ColNeedsScreenshots,
	}
	for _, f := range s.prompts.CustomFields {
		h = append(h, f.Name)
	}
	return h
}

func (s *SummarizeStage) Load(context.Context) ([]stage.WorkItem, error) {
	t, err := s.store.ReadAll(constants.TranscriptsTable)
	if err != nil {
		if errors.Is(err, table.ErrNotFound) {
			return nil, common.FatalError("NO_INPUT", fmt.Errorf("%w: %s is missing, run transcribe first", common.ErrNoWork, constants.TranscriptsTable))
		}
		return nil, common.FatalError("STORE_READ", err)
	}
	items := make([]stage.WorkItem, 0, len(t.Records))
	for _, rec := range t.Records {
		items = append(items, stage.WorkItem{
			Key:    rec[constants.ColFilename],
			Text:   rec[constants.ColTranscription],
			Source: rec,
		})
	}
	return items, nil
}

// ShortCircuit answers transcripts shorter than the minimum without any call.
func (s *SummarizeStage) ShortCircuit(item stage.WorkItem) (table.Record, bool) {
	if utf8.RuneCountInString(item.Text) >= s.minLength {
		return nil, false
	}
	rec := table.Record{
		constants.ColTranscription:    item.Text,
		constants.ColSummary:          constants.ShortTranscriptSummary,
		constants.ColTags:             "",
		constants.ColNeedsScreenshots: constants.FlagTrue,
	}
	for _, f := range s.prompts.CustomFields {
		rec[f.Name] = ""
	}
	return rec, true
}

func (s *SummarizeStage) Process(ctx context.Context, item stage.WorkItem) (table.Record, error) {
	p := s.prompts
	type job struct {
		column string
		req    llm.Request
		post   func(string) string
	}
	jobs := []job{
		{constants.ColSummary, s.request(p.Summary, item.Text, p.SummaryGen), nil},
		{constants.ColTags, s.request(p.Tags, item.Text, p.TagsGen), llm.CleanTags},
		{constants.ColNeedsScreenshots, s.request(p.NeedsScreenshots, item.Text, p.TagsGen), llm.NormalizeFlag},
	}
	for _, f := range p.CustomFields {
		jobs = append(jobs, job{f.Name, s.request(f.Prompt, item.Text, p.CustomGen), nil})
	}

	rec := table.Record{constants.ColTranscription: item.Text}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			op := fmt.Sprintf("generate:%s:%s", item.Key, j.column)
			out, err := retry.Submit(gctx, s.genai, op, func(ctx context.Context) (string, error) {
				return s.gen.Generate(ctx, j.req)
			})
			if err != nil {
				return err
			}
			if j.post != nil {
				out = j.post(out)
			}
			mu.Lock()
			rec[j.column] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SummarizeStage) Placeholder(item stage.WorkItem, err error) table.Record {
	rec := table.Record{
		constants.ColTranscription:    item.Text,
		constants.ColSummary:          constants.ErrorSummaryPrefix + err.Error(),
		constants.ColTags:             constants.ErrorTags,
		constants.ColNeedsScreenshots: constants.FlagTrue,
	}
	for _, f := range s.prompts.CustomFields {
		rec[f.Name] = constants.ErrorCustomField
	}
	return rec
}

func (s *SummarizeStage) request(prompt, transcript string, gen common.GenerationSettings) llm.Request {
	return llm.Request{
		Prompt:      llm.WithInput(prompt, transcript),
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
	}
}
