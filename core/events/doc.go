// Package events decodes and classifies inbound realtime session frames.
//
// Every frame carries a "type" discriminator. Kinds are grouped into a closed
// set of categories consumed by the orchestration engine:
//
// user input
//
//   - CategoryTranscriptionCompleted
//     (conversation.item.input_audio_transcription.completed): final
//     transcript for a user audio item.
//   - CategoryTranscriptionFailed
//     (conversation.item.input_audio_transcription.failed): the server could
//     not transcribe a user audio item.
//   - CategoryTurnCreated (conversation.item.created, conversation.item.added):
//     a conversation item was added; user items may carry inline transcripts.
//   - CategorySpeechStarted (input_audio_buffer.speech_started): server VAD
//     detected speech.
//   - CategorySpeechStopped (input_audio_buffer.speech_stopped,
//     input_audio_buffer.committed): speech ended or the buffer was committed.
//
// assistant response
//
//   - CategoryResponseCreated (response.created): a new response started.
//   - CategoryTextDelta (response.text.delta, response.output_text.delta):
//     append-only text segment.
//   - CategoryTextDone (response.text.done, response.output_text.done): full
//     text for the content part.
//   - CategoryAudioTranscriptDelta (response.audio_transcript.delta,
//     response.output_audio_transcript.delta): append-only transcript segment
//     of the spoken reply.
//   - CategoryAudioTranscriptDone (response.audio_transcript.done,
//     response.output_audio_transcript.done): full spoken reply transcript.
//   - CategoryContentPartAdded / CategoryContentPartDone
//     (response.content_part.added / response.content_part.done).
//   - CategoryResponseDone (response.done) and CategoryResponseCompleted
//     (response.completed): the response finished. Both may arrive for the
//     same response and both may carry the structured output list.
//
// diagnostics
//
//   - CategoryError (error): protocol level error reported by the server.
//   - CategoryUnknown: anything else. Unknown kinds are never an error.
package events
