package extract

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	CropQuestion   = "What crop is mentioned in the sentence? Just return the crop name, not a sentence, return nothing if answer cannot be found"
	RegionQuestion = "Which region is mentioned in the sentence? Just return the region name, not a sentence, return nothing if answer cannot be found"
	TimeQuestion   = "What season or month is mentioned in the sentence? Just return the season or month name, not a sentence, nothing"
)

// Answerer answers one extractive question about a context passage.
type Answerer interface {
	Answer(ctx context.Context, question, context string) (string, error)
}

// Entities are the spans pulled out of a user sentence, exactly as the model
// returned them. Any field may be empty.
type Entities struct {
	Crop   string
	Region string
	Time   string
}

// Extractor asks the crop, region and time questions against a sentence.
type Extractor struct {
	qa Answerer
}

func New(qa Answerer) *Extractor {
	return &Extractor{qa: qa}
}

// Extract runs the three questions concurrently. Any failed call fails the
// whole extraction.
func (e *Extractor) Extract(ctx context.Context, sentence string) (Entities, error) {
	var out Entities

	g, gctx := errgroup.WithContext(ctx)
	ask := func(question string, dst *string) {
		g.Go(func() error {
			answer, err := e.qa.Answer(gctx, question, sentence)
			if err != nil {
				return err
			}
			*dst = answer
			return nil
		})
	}

	ask(CropQuestion, &out.Crop)
	ask(RegionQuestion, &out.Region)
	ask(TimeQuestion, &out.Time)

	if err := g.Wait(); err != nil {
		return Entities{}, fmt.Errorf("extract entities: %w", err)
	}
	return out, nil
}
