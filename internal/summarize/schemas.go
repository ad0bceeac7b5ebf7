package summarize

import (
	"google.golang.org/genai"

	"newscrunch/internal/core"
)

var keywordTypeEnum = []string{
	string(core.KeywordPerson),
	string(core.KeywordPlace),
	string(core.KeywordEvent),
	string(core.KeywordInstitution),
	string(core.KeywordConcept),
	string(core.KeywordOther),
}

func keywordsSchema() *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: "A list of up to 10 named entities relating to the story, such as names, places, events or institutions.",
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"keyword": {Type: genai.TypeString, Description: "Lemmatised keyword in English."},
				"type":    {Type: genai.TypeString, Enum: keywordTypeEnum},
			},
			Required: []string{"keyword", "type"},
		},
	}
}

// storyDigestSchema constrains the per-story summarisation response.
func storyDigestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"headline": {
				Type:        genai.TypeString,
				Description: "Headline for the news story up to 15 words.",
			},
			"story_summary": {
				Type:        genai.TypeString,
				Description: "Summary of the news story up to 150 words.",
			},
			"coverage_summary": {
				Type:        genai.TypeString,
				Description: "Up to 100 words comparing how the different providers cover the story.",
			},
			"keywords": keywordsSchema(),
		},
		Required: []string{"headline", "story_summary", "coverage_summary", "keywords"},
	}
}

// rundownDescriptions documents each rundown category for the model.
var rundownDescriptions = map[core.RundownType]string{
	core.RundownDaily:      "Up to 200 words to summarise the most important stories and information from todays news stories.",
	core.RundownAustralian: "Up to 200 words to summarise the most important Australian stories and information from todays news stories.",
	core.RundownUS:         "Up to 200 words to summarise the most important American stories and information from todays news stories.",
}

// rundownSchema constrains the digest rundown response: one summary per
// category, all categories required.
func rundownSchema() *genai.Schema {
	properties := make(map[string]*genai.Schema, len(core.RundownTypes))
	required := make([]string, 0, len(core.RundownTypes))
	for _, rt := range core.RundownTypes {
		properties[string(rt)] = &genai.Schema{
			Type:        genai.TypeString,
			Description: rundownDescriptions[rt],
		}
		required = append(required, string(rt))
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

// timelineSchema constrains the super-story timeline response.
func timelineSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"subject": {
				Type:        genai.TypeString,
				Description: "2 to 5 words describing the specific story and category of the story.",
			},
			"headline": {
				Type:        genai.TypeString,
				Description: "Up to 15 words to headline the story based on the articles.",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "Up to 250 words to summarise the story based on the articles.",
			},
			"timeline_events": {
				Type:        genai.TypeArray,
				Description: "A list of events in the timeline.",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"date": {
							Type:        genai.TypeString,
							Description: "Date of the event in YYYY-MM-DD format.",
						},
						"event_description": {
							Type:        genai.TypeString,
							Description: "Description of the event in a single sentence up to 10 words.",
						},
						"story_reference": {
							Type:        genai.TypeInteger,
							Description: "ID of a story that describes the event.",
						},
					},
					Required: []string{"date", "event_description", "story_reference"},
				},
			},
			"keywords": keywordsSchema(),
		},
		Required: []string{"subject", "headline", "summary", "timeline_events", "keywords"},
	}
}
