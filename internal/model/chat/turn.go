package chat

import "io"

// AudioInput is a recorded utterance waiting to be transcribed.
type AudioInput struct {
	Reader   io.Reader
	Filename string
	Format   string // wav, mp3, webm, pcm ...
	Language string
}

// FileInput is an uploaded attachment as received from the client.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// TurnInput is everything the user handed over for a single submission.
// It is never stored; the controller folds it into one user Message.
type TurnInput struct {
	Text  string
	Audio *AudioInput
	File  *FileInput
}
