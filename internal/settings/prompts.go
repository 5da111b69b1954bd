package settings

// Default prompt templates. The pipeline substitutes the {{...}} placeholders
// before sending. Overridable per deployment via settings.yaml.

const defaultAlignVideoPrompt = `You are a caption timing engine for songs.
Align the lyric lines below to the transcribed words and their timestamps.

Song: {{TITLE}} by {{ARTIST}}
Language: {{LANGUAGE}}

Lyric lines (keep text exactly as written, one caption per line):
{{LYRICS}}

Transcribed words with start and end times in seconds:
{{TRANSCRIPT}}

Rules:
- Every lyric line becomes exactly one caption entry, in order.
- startTime is the start of the first word sung from that line.
- endTime is the end of the last word sung from that line.
- Never invent or drop lines. Never translate.

Output only the assignment below, no prose, no markdown fences:
captionData = [{"text": "line text", "startTime": 0.0, "endTime": 0.0}]`

const defaultAlignVoicePrompt = `You are a caption timing engine for spoken audio.
Align the caption lines below to the transcribed words and their timestamps.

Language: {{LANGUAGE}}

Caption lines (keep text exactly as written, one caption per line):
{{LINES}}

Transcribed words with start and end times in seconds:
{{TRANSCRIPT}}

Rules:
- Every caption line becomes exactly one entry, in order.
- startTime is the start of the first word of that line.
- endTime is the end of the last word of that line.
- Never invent or drop lines. Never translate.

Output only the assignment below, no prose, no markdown fences:
captionData = [{"text": "line text", "startTime": 0.0, "endTime": 0.0}]`

const defaultCorrectPrompt = `You are proofreading machine transcribed captions for an audio track.
The reference text is what was actually said or sung.

Reference text:
{{LYRICS}}

Current captions with timings:
{{LINES}}

Fix words the transcriber misheard using the reference text. Keep every
startTime and endTime exactly as given. Keep the same number of entries.

Output only the assignment below, no prose, no markdown fences:
captionData = [{"text": "line text", "startTime": 0.0, "endTime": 0.0}]`
