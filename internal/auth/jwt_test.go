package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type JWTSuite struct {
	suite.Suite
	svc *Service
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTSuite))
}

func (s *JWTSuite) SetupTest() {
	s.svc = NewService("test-signing-key", "credere")
}

func (s *JWTSuite) TestRoundTrip() {
	lenderID := int64(3)
	token, err := s.svc.GenerateAccessToken(42, "analyst@bancoldex.example", &lenderID, time.Hour)
	s.Require().NoError(err)

	claims, err := s.svc.ValidateToken(token)
	s.Require().NoError(err)
	s.Equal(int64(42), claims.UserID)
	s.Equal("analyst@bancoldex.example", claims.Email)
	s.Require().NotNil(claims.LenderID)
	s.Equal(lenderID, *claims.LenderID)
}

func (s *JWTSuite) TestValidateToken() {
	s.Run("expired token is rejected", func() {
		token, err := s.svc.GenerateAccessToken(42, "x@example.com", nil, -time.Minute)
		s.Require().NoError(err)
		_, err = s.svc.ValidateToken(token)
		s.Error(err)
	})

	s.Run("token signed with another key is rejected", func() {
		other := NewService("another-key", "credere")
		token, err := other.GenerateAccessToken(42, "x@example.com", nil, time.Hour)
		s.Require().NoError(err)
		_, err = s.svc.ValidateToken(token)
		s.Error(err)
	})

	s.Run("garbage is rejected", func() {
		_, err := s.svc.ValidateToken("not-a-token")
		s.Error(err)
	})
}
