package notify

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"unicode"

	"github.com/stretchr/testify/suite"
)

type RecorderSuite struct {
	suite.Suite
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) TestMessageIDsStayPrintableAndUnique() {
	rec := &Recorder{}
	seen := map[string]bool{}
	for i := 0; i < 40; i++ {
		id, err := rec.Send(context.Background(), TemplateInvitation, "supplier@example.com", nil)
		s.Require().NoError(err)
		s.Equal("msg-"+strconv.Itoa(i+1), id)
		s.False(seen[id], "duplicate message id %s", id)
		seen[id] = true
		for _, r := range id {
			s.True(unicode.IsPrint(r), "non-printable rune in %q", id)
		}
	}
	s.Equal(40, rec.CountByTemplate(TemplateInvitation))
}

func (s *RecorderSuite) TestFailWithAbortsSend() {
	boom := errors.New("smtp down")
	rec := &Recorder{FailWith: boom}

	_, err := rec.Send(context.Background(), TemplateApproved, "supplier@example.com", nil)
	s.Require().ErrorIs(err, boom)
	s.Empty(rec.Sent)
}
