package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credere/internal/domain"
	pkgerrors "credere/pkg/errors"
)

type MachineSuite struct {
	suite.Suite
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) TestValidTransitions() {
	cases := []struct {
		from  domain.ApplicationStatus
		event Event
		to    domain.ApplicationStatus
	}{
		{domain.StatusPending, EventAccept, domain.StatusAccepted},
		{domain.StatusPending, EventDecline, domain.StatusDeclined},
		{domain.StatusDeclined, EventRollbackDecline, domain.StatusPending},
		{domain.StatusAccepted, EventSubmit, domain.StatusSubmitted},
		{domain.StatusSubmitted, EventStart, domain.StatusStarted},
		{domain.StatusStarted, EventRequestInformation, domain.StatusInformationRequested},
		{domain.StatusInformationRequested, EventCompleteInformationRequest, domain.StatusStarted},
		{domain.StatusStarted, EventApprove, domain.StatusApproved},
		{domain.StatusStarted, EventReject, domain.StatusRejected},
		{domain.StatusContractUploaded, EventReject, domain.StatusRejected},
		{domain.StatusApproved, EventUploadContract, domain.StatusContractUploaded},
		{domain.StatusContractUploaded, EventComplete, domain.StatusCompleted},
		{domain.StatusPending, EventLapse, domain.StatusLapsed},
		{domain.StatusAccepted, EventLapse, domain.StatusLapsed},
		{domain.StatusInformationRequested, EventLapse, domain.StatusLapsed},
	}
	for _, tc := range cases {
		s.Run(string(tc.event)+" from "+string(tc.from), func() {
			outcome, err := Transition(tc.from, tc.event)
			s.Require().NoError(err)
			s.Equal(tc.to, outcome.Status)
		})
	}
}

func (s *MachineSuite) TestInvalidTransitions() {
	cases := []struct {
		from  domain.ApplicationStatus
		event Event
	}{
		{domain.StatusAccepted, EventAccept},
		{domain.StatusPending, EventSubmit},
		{domain.StatusSubmitted, EventApprove},
		{domain.StatusApproved, EventReject},
		{domain.StatusCompleted, EventComplete},
		{domain.StatusStarted, EventLapse},
		{domain.StatusPending, EventRollbackDecline},
		{domain.StatusRejected, EventUploadContract},
	}
	for _, tc := range cases {
		s.Run(string(tc.event)+" from "+string(tc.from), func() {
			_, err := Transition(tc.from, tc.event)
			s.Require().Error(err)
			s.True(pkgerrors.HasCode(err, pkgerrors.CodeConflict))
		})
	}
}

func (s *MachineSuite) TestApplyStampsTimestamps() {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	s.Run("accept clears expiration", func() {
		expires := now.Add(time.Hour)
		app := &domain.Application{Status: domain.StatusPending, ExpiredAt: &expires}
		outcome, err := Transition(app.Status, EventAccept)
		s.Require().NoError(err)
		outcome.Apply(app, now)
		s.Equal(domain.StatusAccepted, app.Status)
		s.Require().NotNil(app.AcceptedAt)
		s.Equal(now, *app.AcceptedAt)
		s.Nil(app.ExpiredAt)
	})

	s.Run("rollback clears the decline timestamp", func() {
		declined := now.Add(-time.Hour)
		app := &domain.Application{Status: domain.StatusDeclined, DeclinedAt: &declined}
		outcome, err := Transition(app.Status, EventRollbackDecline)
		s.Require().NoError(err)
		outcome.Apply(app, now)
		s.Equal(domain.StatusPending, app.Status)
		s.Nil(app.DeclinedAt)
	})

	s.Run("lapse stamps LapsedAt", func() {
		app := &domain.Application{Status: domain.StatusAccepted}
		outcome, err := Transition(app.Status, EventLapse)
		s.Require().NoError(err)
		outcome.Apply(app, now)
		s.Require().NotNil(app.LapsedAt)
		s.Equal(now, *app.LapsedAt)
	})
}
