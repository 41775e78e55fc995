package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// unspecifiedTime stands in for a season the extractor could not find.
const unspecifiedTime = "an unspecified time of year"

const analysisTemplate = `Analyze the suitability of growing {crop} in {region} during {time}. Consider the following factors:
1. Climatic conditions of {region} during {time} in the near future
2. Soil conditions of {region}
3. {crop}'s requirements for successful growth, particularly during {time}
4. Best time period for growing {crop} in {region}, and how {time} aligns with this
5. Any potential challenges or considerations specific to {time}

Provide a detailed analysis and recommend whether {crop} is suitable for {region} during {time}.
If not entirely suitable, suggest alternative crops that would be more appropriate for the region and time period.
Also, provide any adjustments in farming practices that might be necessary for {time}.

Make sure to explicitly mention the typical weather conditions expected in {region} during {time} in your response.
Ignore and don't mention if there's any repeated nonsensical phrase present.`

var analysisPrompt = prompt.FromMessages(schema.FString, schema.UserMessage(analysisTemplate))

// BuildAnalysisPrompt renders the suitability instruction for the extracted
// entities.
func BuildAnalysisPrompt(ctx context.Context, crop, region, time string) (string, error) {
	time = strings.TrimSpace(time)
	if time == "" {
		time = unspecifiedTime
	}

	messages, err := analysisPrompt.Format(ctx, map[string]any{
		"crop":   strings.TrimSpace(crop),
		"region": strings.TrimSpace(region),
		"time":   time,
	})
	if err != nil {
		return "", fmt.Errorf("format analysis prompt: %w", err)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("format analysis prompt: no messages")
	}
	return messages[0].Content, nil
}
