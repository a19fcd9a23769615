package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pr0ta9/genesis/internal/pathtool"
	"github.com/pr0ta9/genesis/internal/wftype"
)

// The handlers in this file stand in for path tools whose production
// implementations are external collaborators (the specification scopes
// the individual media-processing engines out of the core and only
// specifies their interface to it). Each returns deterministic,
// structurally valid output so the planner, executor, and orchestrator
// can be exercised end to end without a real OCR/translation/audio
// pipeline wired in. A deployment swaps the HandlerFunc for a real one
// without touching the PathTool's name, types, or parameters.

// ImageOCR returns a PathTool advertising IMAGE -> TEXT extraction.
func ImageOCR() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "image_ocr",
		Desc:       "Extracts text visible in an image via optical character recognition.",
		InputType:  wftype.Image,
		OutputType: wftype.Text,
		Preferred:  1.0,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			return []byte(fmt.Sprintf("[ocr stand-in: %d bytes of image data]", len(input))), nil
		},
	}
}

// Translate returns a PathTool advertising TEXT -> TEXT translation,
// parameterized by a target language.
func Translate() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "translate_text",
		Desc:       "Translates text into a target language.",
		InputType:  wftype.Text,
		OutputType: wftype.Text,
		Preferred:  0.8,
		Parameters: []pathtool.Parameter{
			{Name: "target_language", Description: "BCP-47 language code to translate into, e.g. \"es\" or \"ja\".", Type: "string", Required: true},
		},
		HandlerFunc: func(_ context.Context, input []byte, args map[string]any) ([]byte, error) {
			lang, _ := args["target_language"].(string)
			if lang == "" {
				return nil, fmt.Errorf("translate_text: missing required parameter target_language")
			}
			return []byte(fmt.Sprintf("[%s] %s", lang, string(input))), nil
		},
	}
}

// AudioDenoise returns a PathTool advertising AUDIO -> AUDIO noise
// reduction.
func AudioDenoise() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "audio_denoise",
		Desc:       "Reduces background noise in an audio clip.",
		InputType:  wftype.Audio,
		OutputType: wftype.Audio,
		Preferred:  1.0,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			return input, nil
		},
	}
}

// AudioTranscribe returns a PathTool advertising AUDIO -> TEXT
// transcription, the edge that lets audio content reach every other
// text-rooted tool in the graph.
func AudioTranscribe() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "audio_transcribe",
		Desc:       "Transcribes spoken audio into plain text.",
		InputType:  wftype.Audio,
		OutputType: wftype.Text,
		Preferred:  1.0,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			return []byte(fmt.Sprintf("[transcription stand-in: %d bytes of audio data]", len(input))), nil
		},
	}
}

// ImageOverlay returns a PathTool advertising IMAGE -> IMAGE captioning,
// parameterized by overlay text.
func ImageOverlay() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "image_overlay_text",
		Desc:       "Overlays a caption onto an image.",
		InputType:  wftype.Image,
		OutputType: wftype.Image,
		Preferred:  0.6,
		Parameters: []pathtool.Parameter{
			{Name: "caption", Description: "Text to overlay on the image.", Type: "string", Required: true},
		},
		HandlerFunc: func(_ context.Context, input []byte, args map[string]any) ([]byte, error) {
			if _, ok := args["caption"].(string); !ok {
				return nil, fmt.Errorf("image_overlay_text: missing required parameter caption")
			}
			return input, nil
		},
	}
}

// VideoToAudio returns a PathTool advertising VIDEO -> AUDIO extraction,
// the edge that roots video content into the audio/text subgraph.
func VideoToAudio() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "video_extract_audio",
		Desc:       "Extracts the audio track from a video file.",
		InputType:  wftype.Video,
		OutputType: wftype.Audio,
		Preferred:  1.0,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			return input, nil
		},
	}
}

// TextToJSON returns a PathTool advertising TEXT -> JSON structuring.
func TextToJSON() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "text_to_json",
		Desc:       "Wraps plain text into a minimal JSON document.",
		InputType:  wftype.Text,
		OutputType: wftype.JSON,
		Preferred:  0.5,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			return json.Marshal(map[string]string{"text": string(input)})
		},
	}
}

// JSONToText returns a PathTool advertising JSON -> TEXT flattening.
func JSONToText() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "json_to_text",
		Desc:       "Flattens a JSON document into an indented text representation.",
		InputType:  wftype.JSON,
		OutputType: wftype.Text,
		Preferred:  0.5,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			var v any
			if err := json.Unmarshal(input, &v); err != nil {
				return nil, fmt.Errorf("json_to_text: %w", err)
			}
			pretty, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("json_to_text: %w", err)
			}
			return pretty, nil
		},
	}
}

// TableToJSON returns a PathTool advertising TABLE -> JSON structuring;
// its handler reads the input as comma-separated text with a header row.
func TableToJSON() *pathtool.PathTool {
	return &pathtool.PathTool{
		ToolName:   "table_to_json",
		Desc:       "Converts a simplified CSV-style table into a JSON array of row objects.",
		InputType:  wftype.Table,
		OutputType: wftype.JSON,
		Preferred:  0.4,
		HandlerFunc: func(_ context.Context, input []byte, _ map[string]any) ([]byte, error) {
			lines := strings.Split(strings.TrimSpace(string(input)), "\n")
			if len(lines) == 0 {
				return []byte("[]"), nil
			}
			header := strings.Split(lines[0], ",")
			rows := make([]map[string]string, 0, len(lines)-1)
			for _, line := range lines[1:] {
				cells := strings.Split(line, ",")
				row := make(map[string]string, len(header))
				for i, h := range header {
					if i < len(cells) {
						row[strings.TrimSpace(h)] = strings.TrimSpace(cells[i])
					}
				}
				rows = append(rows, row)
			}
			return json.Marshal(rows)
		},
	}
}

// Register adds every built-in tool to r, returning the first
// registration error encountered, if any.
func Register(r *pathtool.ToolRegistry) error {
	builtins := []*pathtool.PathTool{
		PDFExtract(), DocxExtract(), XLSXToText(), TextToXLSX(),
		ImageOCR(), Translate(), AudioDenoise(), AudioTranscribe(),
		ImageOverlay(), VideoToAudio(), TextToJSON(), JSONToText(), TableToJSON(),
	}
	for _, t := range builtins {
		if err := r.RegisterPathTool(t); err != nil {
			return err
		}
	}
	return nil
}
