package generate

import (
	"context"
	"encoding/base64"

	"shorts-studio/types"
)

// deliveryInstruction prefixes the utterance so the voice reads it as an ad
func deliveryInstruction(lang types.Language) string {
	if lang == types.LanguageSecondary {
		return "Say enthusiastically in Hindi: "
	}
	return "Say enthusiastically: "
}

// GenerateSpeech synthesizes fullText with the configured voice.
// It returns raw 16-bit mono 24 kHz PCM (see audio.SpeechFormat);
// ErrEmptyResult means the first part carried no inline audio.
func (c *Client) GenerateSpeech(ctx context.Context, fullText string, lang types.Language) ([]byte, error) {
	const op = "generate speech"
	c.logger.Info("synthesizing speech", "voice", c.cfg.Voice, "language", lang)

	resp, err := c.generateContent(ctx, op, c.cfg.SpeechModel, contentRequest{
		Contents: userText(deliveryInstruction(lang) + fullText),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: c.cfg.Voice}},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	parts := resp.parts()
	if len(parts) == 0 || parts[0].InlineData == nil || parts[0].InlineData.Data == "" {
		return nil, Wrap(ErrEmptyResult, op, "no audio in response", nil)
	}
	pcm, err := base64.StdEncoding.DecodeString(parts[0].InlineData.Data)
	if err != nil {
		return nil, Wrap(ErrMalformedResponse, op, "decode audio payload", err)
	}
	c.logger.Info("✅ speech ready", "bytes", len(pcm))
	return pcm, nil
}
