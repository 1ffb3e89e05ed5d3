package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	in, err := Decode([]byte(`{"type":"join","payload":{"roomId":"r1"}}`))
	require.NoError(t, err)
	require.NotNil(t, in.Join)
	assert.Equal(t, KindJoin, in.Type)
	assert.Equal(t, "r1", in.Join.RoomID)
}

func TestDecodeSubmitAnswerBounds(t *testing.T) {
	in, err := Decode([]byte(`{"type":"submitAnswer","payload":{"roomId":"r1","questionIndex":9,"choiceIdx":3}}`))
	require.NoError(t, err)
	assert.Equal(t, 9, in.Submit.QuestionIndex)
	assert.Equal(t, 3, in.Submit.ChoiceIdx)

	cases := []string{
		`{"type":"submitAnswer","payload":{"roomId":"r1","questionIndex":10,"choiceIdx":0}}`,
		`{"type":"submitAnswer","payload":{"roomId":"r1","questionIndex":-1,"choiceIdx":0}}`,
		`{"type":"submitAnswer","payload":{"roomId":"r1","questionIndex":0,"choiceIdx":4}}`,
		`{"type":"submitAnswer","payload":{"roomId":"","questionIndex":0,"choiceIdx":0}}`,
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		assert.Equal(t, ErrBadPayload, err, "frame %s", c)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, c := range []string{
		`not json`,
		`{"payload":{}}`,
		`{"type":"unknownKind","payload":{}}`,
	} {
		_, err := Decode([]byte(c))
		assert.Equal(t, ErrBadFrame, err, "frame %s", c)
	}
}

func TestDecodeRoomIDLength(t *testing.T) {
	long := bytes.Repeat([]byte("a"), 51)
	frame := []byte(`{"type":"join","payload":{"roomId":"` + string(long) + `"}}`)
	_, err := Decode(frame)
	assert.Equal(t, ErrBadPayload, err)
}

func TestDecodeOversizedFrame(t *testing.T) {
	frame := append([]byte(`{"type":"join","payload":{"roomId":"`), bytes.Repeat([]byte("x"), MaxFrameBytes)...)
	frame = append(frame, []byte(`"}}`)...)
	_, err := Decode(frame)
	assert.Equal(t, ErrPayloadTooLarge, err)
}

func TestEncodeError(t *testing.T) {
	data := EncodeError(ErrRateLimited)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, KindError, f.Type)

	var e Err
	require.NoError(t, json.Unmarshal(f.Payload, &e))
	assert.Equal(t, 429, e.Code)
}

func TestEndQuestionNullWinner(t *testing.T) {
	data, err := Encode(KindEndQuestion, EndQuestionPayload{QuestionIndex: 0, CorrectIdx: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"winnerUserId":null`)
}
