package events

type Category int

const (
	CategoryUnknown Category = iota
	CategoryTranscriptionCompleted
	CategoryTranscriptionFailed
	CategoryTurnCreated
	CategoryResponseCreated
	CategoryTextDelta
	CategoryTextDone
	CategoryAudioTranscriptDelta
	CategoryAudioTranscriptDone
	CategoryContentPartAdded
	CategoryContentPartDone
	CategoryResponseDone
	CategoryResponseCompleted
	CategorySpeechStarted
	CategorySpeechStopped
	CategoryError
)

var categoryNames = map[Category]string{
	CategoryUnknown:                "unknown",
	CategoryTranscriptionCompleted: "transcription_completed",
	CategoryTranscriptionFailed:    "transcription_failed",
	CategoryTurnCreated:            "turn_created",
	CategoryResponseCreated:        "response_created",
	CategoryTextDelta:              "text_delta",
	CategoryTextDone:               "text_done",
	CategoryAudioTranscriptDelta:   "audio_transcript_delta",
	CategoryAudioTranscriptDone:    "audio_transcript_done",
	CategoryContentPartAdded:       "content_part_added",
	CategoryContentPartDone:        "content_part_done",
	CategoryResponseDone:           "response_done",
	CategoryResponseCompleted:      "response_completed",
	CategorySpeechStarted:          "speech_started",
	CategorySpeechStopped:          "speech_stopped",
	CategoryError:                  "error",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[CategoryUnknown]
}

// IsCompletion reports whether the category finalizes an assistant response.
func (c Category) IsCompletion() bool {
	return c == CategoryResponseDone || c == CategoryResponseCompleted
}

var categories = map[Kind]Category{
	KindTranscriptionCompleted:     CategoryTranscriptionCompleted,
	KindTranscriptionFailed:        CategoryTranscriptionFailed,
	KindItemCreated:                CategoryTurnCreated,
	KindItemAdded:                  CategoryTurnCreated,
	KindResponseCreated:            CategoryResponseCreated,
	KindTextDelta:                  CategoryTextDelta,
	KindOutputTextDelta:            CategoryTextDelta,
	KindTextDone:                   CategoryTextDone,
	KindOutputTextDone:             CategoryTextDone,
	KindAudioTranscriptDelta:       CategoryAudioTranscriptDelta,
	KindOutputAudioTranscriptDelta: CategoryAudioTranscriptDelta,
	KindAudioTranscriptDone:        CategoryAudioTranscriptDone,
	KindOutputAudioTranscriptDone:  CategoryAudioTranscriptDone,
	KindContentPartAdded:           CategoryContentPartAdded,
	KindContentPartDone:            CategoryContentPartDone,
	KindResponseDone:               CategoryResponseDone,
	KindResponseCompleted:          CategoryResponseCompleted,
	KindSpeechStarted:              CategorySpeechStarted,
	KindSpeechStopped:              CategorySpeechStopped,
	KindInputCommitted:             CategorySpeechStopped,
	KindError:                      CategoryError,
}

// Classify maps a frame kind to its category. Kinds this package does not
// know about, including ones added by future protocol versions, map to
// CategoryUnknown.
func Classify(kind Kind) Category {
	if category, ok := categories[kind]; ok {
		return category
	}
	return CategoryUnknown
}
