package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	var testCases = []struct {
		description string
		actionID    string
		expect      Outcome
		expectErr   error
	}{
		{description: "approve", actionID: ApproveActionID, expect: OutcomeApproved},
		{description: "reject", actionID: RejectActionID, expect: OutcomeRejected},
		{description: "unknown", actionID: "approve", expectErr: ErrUnrecognizedAction},
		{description: "empty", actionID: "", expectErr: ErrUnrecognizedAction},
		{description: "case sensitive", actionID: "Approve_Request", expectErr: ErrUnrecognizedAction},
	}

	for _, testCase := range testCases {
		actual, err := ParseOutcome(testCase.actionID)
		if testCase.expectErr != nil {
			assert.True(t, errors.Is(err, testCase.expectErr), testCase.description)
			assert.Empty(t, actual, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func TestDecisionActionIDs(t *testing.T) {
	ids := DecisionActionIDs()
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	for _, id := range ids {
		_, err := ParseOutcome(id)
		assert.NoError(t, err)
	}
}

func TestDecisionTexts(t *testing.T) {
	d := Decision{Outcome: OutcomeApproved, DecidedBy: "U2", RequesterID: "U1"}
	assert.Equal(t, "Your request has been approved by <@U2>.", d.RequesterNotice())
	assert.Equal(t, "Request approved by <@U2>", d.Summary())

	d.Outcome = OutcomeRejected
	assert.Equal(t, "Your request has been rejected by <@U2>.", d.RequesterNotice())
	assert.Equal(t, "Request rejected by <@U2>", d.Summary())
}

func TestApprovalRequest_Validate(t *testing.T) {
	valid := ApprovalRequest{RequesterID: "U1", ApproverID: "U2", Text: "Needs sign-off"}
	assert.NoError(t, valid.Validate())

	for _, broken := range []ApprovalRequest{
		{ApproverID: "U2", Text: "x"},
		{RequesterID: "U1", Text: "x"},
		{RequesterID: "U1", ApproverID: "U2"},
		{RequesterID: "U1", ApproverID: "U2", Text: " \n\t "},
	} {
		err := broken.Validate()
		assert.True(t, errors.Is(err, ErrMalformedPayload))
	}
}

func TestSubmissionEvent_Field(t *testing.T) {
	e := SubmissionEvent{Values: map[string]map[string]FieldValue{
		ApproverBlockID: {ApproverActionID: {SelectedUser: "U2"}},
	}}
	v, ok := e.Field(ApproverBlockID, ApproverActionID)
	assert.True(t, ok)
	assert.Equal(t, "U2", v.SelectedUser)

	_, ok = e.Field(ApprovalTextBlockID, ApprovalTextActionID)
	assert.False(t, ok)

	_, ok = SubmissionEvent{}.Field(ApproverBlockID, ApproverActionID)
	assert.False(t, ok)
}

func TestMessageRef(t *testing.T) {
	assert.True(t, MessageRef{}.IsZero())
	assert.True(t, MessageRef{ChannelID: "D1"}.IsZero())
	ref := MessageRef{ChannelID: "D1", Timestamp: "1700000000.000100"}
	assert.False(t, ref.IsZero())
	assert.Equal(t, "D1:1700000000.000100", ref.Key())
}
