package chathub

import "github.com/stretchr/testify/mock"

type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetParticipantID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockClient) Run() {
	m.Called()
}

func (m *MockClient) Close() {
	m.Called()
}
