package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// Transcribe forwards an uploaded audio file to the STT service and
// returns its JSON response untouched. The gateway does not interpret the
// transcription payload; any container format the STT engine accepts
// (webm, wav, ogg, mp3, …) passes through.
func (o *Orchestrator) Transcribe(ctx context.Context, filename, contentType string, audio io.Reader) (json.RawMessage, error) {
	up := o.upstreams()

	if filename == "" {
		filename = "audio.webm"
	}
	if contentType == "" {
		contentType = "audio/webm"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("orchestrate: build stt form: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("orchestrate: read audio upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("orchestrate: finalize stt form: %w", err)
	}

	var out json.RawMessage
	err = o.do(ctx, "stt", up.STT, http.MethodPost, "/transcribe",
		form.FormDataContentType(), &body, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
