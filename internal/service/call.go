package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"messenger/internal/config"
	"messenger/internal/domain"
	apperrors "messenger/pkg/errors"
	"messenger/pkg/logger"
)

const (
	CallEndReasonHangup       = "hangup"
	CallEndReasonNoAnswer     = "no-answer"
	CallEndReasonDisconnected = "disconnected"

	CallFailReasonOffline = "offline"
	CallFailReasonBusy    = "busy"
)

type IncomingCallPayload struct {
	From   string                    `json:"from"`
	Offer  webrtc.SessionDescription `json:"offer"`
	ChatID string                    `json:"chat_id,omitempty"`
}

type CallAcceptedPayload struct {
	From   string                    `json:"from"`
	Answer webrtc.SessionDescription `json:"answer"`
}

type CallRejectedPayload struct {
	From string `json:"from"`
}

type CallEndedPayload struct {
	From   string `json:"from"`
	Reason string `json:"reason,omitempty"`
}

type CallFailedPayload struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type ICECandidatePayload struct {
	From      string                  `json:"from"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// CallService пересылает сигналинг звонков между двумя пирами.
// Звонки не сохраняются, сессия живет только в памяти.
type CallService interface {
	Initiate(from, to string, offer webrtc.SessionDescription, chatID string) error
	Accept(from, to string, answer webrtc.SessionDescription) error
	Reject(from, to string) error
	End(from, to, reason string) error
	RelayICE(from, to string, candidate webrtc.ICECandidateInit) error
	// PeerDisconnected завершает звонок пользователя и уведомляет собеседника
	PeerDisconnected(userID string)
	Status(userID string) domain.CallStatus
	ActiveCalls() int
	ICEServers() []webrtc.ICEServer
	Close()
}

type callSession struct {
	domain.CallSession
	timer *time.Timer
}

type outbound struct {
	to      string
	event   string
	payload any
}

type callService struct {
	peers       PeerDirectory
	ringTimeout time.Duration
	iceServers  []webrtc.ICEServer
	log         logger.Logger

	mu     sync.Mutex
	byUser map[string]*callSession
}

func NewCallService(peers PeerDirectory, realtimeCfg config.RealtimeConfig, webrtcCfg config.WebRTCConfig, log logger.Logger) CallService {
	return &callService{
		peers:       peers,
		ringTimeout: realtimeCfg.RingTimeout,
		iceServers:  buildICEServers(webrtcCfg),
		log:         log,
		byUser:      make(map[string]*callSession),
	}
}

func buildICEServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}
	if len(cfg.TURNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       cfg.TURNURLs,
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNCredential,
		})
	}
	return servers
}

func (s *callService) Initiate(from, to string, offer webrtc.SessionDescription, chatID string) error {
	if from == "" || to == "" {
		return fmt.Errorf("%w: caller and target are required", apperrors.ErrValidation)
	}
	if from == to {
		return fmt.Errorf("%w: cannot call yourself", apperrors.ErrValidation)
	}
	if err := validateDescription(offer, webrtc.SDPTypeOffer); err != nil {
		return err
	}

	target, ok := s.peers.Lookup(to)
	if !ok {
		s.log.Info("Call target offline", "from", from, "to", to)
		return apperrors.ErrOfflineTarget
	}

	s.mu.Lock()
	if _, busy := s.byUser[from]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: you are already in a call", apperrors.ErrConflict)
	}
	if _, busy := s.byUser[to]; busy {
		s.mu.Unlock()
		return apperrors.ErrPeerBusy
	}

	if err := target.Emit(domain.EventIncomingCall, &IncomingCallPayload{From: from, Offer: offer, ChatID: chatID}); err != nil {
		s.mu.Unlock()
		s.log.Warn("Failed to deliver incoming call", "to", to, "error", err)
		return apperrors.ErrOfflineTarget
	}

	sess := &callSession{CallSession: domain.CallSession{
		CallerID:   from,
		ReceiverID: to,
		ChatID:     chatID,
		Status:     domain.CallStatusRinging,
		StartedAt:  time.Now().UTC(),
	}}
	if s.ringTimeout > 0 {
		sess.timer = time.AfterFunc(s.ringTimeout, func() { s.expire(sess) })
	}
	s.byUser[from] = sess
	s.byUser[to] = sess
	s.mu.Unlock()

	s.log.Info("Call initiated", "from", from, "to", to)
	return nil
}

func (s *callService) Accept(from, to string, answer webrtc.SessionDescription) error {
	if err := validateDescription(answer, webrtc.SDPTypeAnswer); err != nil {
		return err
	}

	s.mu.Lock()
	sess := s.pairLocked(from, to)
	if sess == nil || sess.Status != domain.CallStatusRinging || sess.ReceiverID != from {
		s.mu.Unlock()
		return apperrors.ErrNoPendingCall
	}

	caller, ok := s.peers.Lookup(to)
	if !ok {
		s.removeLocked(sess)
		s.mu.Unlock()
		return apperrors.ErrOfflineTarget
	}
	if err := caller.Emit(domain.EventCallAccepted, &CallAcceptedPayload{From: from, Answer: answer}); err != nil {
		s.removeLocked(sess)
		s.mu.Unlock()
		return apperrors.ErrOfflineTarget
	}

	now := time.Now().UTC()
	sess.Status = domain.CallStatusActive
	sess.AnsweredAt = &now
	if sess.timer != nil {
		sess.timer.Stop()
	}
	s.mu.Unlock()

	s.log.Info("Call accepted", "caller", to, "receiver", from)
	return nil
}

func (s *callService) Reject(from, to string) error {
	s.mu.Lock()
	sess := s.pairLocked(from, to)
	if sess == nil {
		s.mu.Unlock()
		return apperrors.ErrNoPendingCall
	}
	s.removeLocked(sess)
	s.mu.Unlock()

	s.emit(outbound{to: to, event: domain.EventCallRejected, payload: &CallRejectedPayload{From: from}})
	s.log.Info("Call rejected", "from", from, "to", to)
	return nil
}

// End без активной сессии ничего не делает: звонок мог уже завершиться по таймауту
func (s *callService) End(from, to, reason string) error {
	if reason == "" {
		reason = CallEndReasonHangup
	}

	s.mu.Lock()
	sess := s.pairLocked(from, to)
	if sess == nil {
		s.mu.Unlock()
		return nil
	}
	s.removeLocked(sess)
	s.mu.Unlock()

	s.emit(outbound{to: to, event: domain.EventCallEnded, payload: &CallEndedPayload{From: from, Reason: reason}})
	s.log.Info("Call ended", "from", from, "to", to, "reason", reason)
	return nil
}

func (s *callService) RelayICE(from, to string, candidate webrtc.ICECandidateInit) error {
	if candidate.Candidate == "" {
		return fmt.Errorf("%w: candidate is required", apperrors.ErrValidation)
	}

	s.mu.Lock()
	sess := s.pairLocked(from, to)
	s.mu.Unlock()
	if sess == nil {
		return apperrors.ErrNoPendingCall
	}

	peer, ok := s.peers.Lookup(to)
	if !ok {
		return apperrors.ErrOfflineTarget
	}
	if err := peer.Emit(domain.EventICECandidate, &ICECandidatePayload{From: from, Candidate: candidate}); err != nil {
		return apperrors.ErrOfflineTarget
	}
	return nil
}

func (s *callService) PeerDisconnected(userID string) {
	s.mu.Lock()
	sess, ok := s.byUser[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.removeLocked(sess)
	s.mu.Unlock()

	peer := sess.Peer(userID)
	s.emit(outbound{to: peer, event: domain.EventCallEnded, payload: &CallEndedPayload{From: userID, Reason: CallEndReasonDisconnected}})
	s.log.Info("Call ended by disconnect", "user_id", userID, "peer", peer)
}

func (s *callService) Status(userID string) domain.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byUser[userID]
	if !ok {
		return domain.CallStatusIdle
	}
	return sess.StatusFor(userID)
}

func (s *callService) ActiveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser) / 2
}

func (s *callService) ICEServers() []webrtc.ICEServer {
	return s.iceServers
}

func (s *callService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byUser {
		if sess.timer != nil {
			sess.timer.Stop()
		}
	}
	s.byUser = make(map[string]*callSession)
}

// expire срабатывает по таймеру звонка, если никто не ответил
func (s *callService) expire(sess *callSession) {
	s.mu.Lock()
	if s.byUser[sess.CallerID] != sess || sess.Status != domain.CallStatusRinging {
		s.mu.Unlock()
		return
	}
	s.removeLocked(sess)
	s.mu.Unlock()

	s.emit(
		outbound{to: sess.CallerID, event: domain.EventCallEnded, payload: &CallEndedPayload{From: sess.ReceiverID, Reason: CallEndReasonNoAnswer}},
		outbound{to: sess.ReceiverID, event: domain.EventCallEnded, payload: &CallEndedPayload{From: sess.CallerID, Reason: CallEndReasonNoAnswer}},
	)
	s.log.Info("Call was not answered", "caller", sess.CallerID, "receiver", sess.ReceiverID)
}

// pairLocked возвращает сессию, только если она связывает именно a и b
func (s *callService) pairLocked(a, b string) *callSession {
	sess, ok := s.byUser[a]
	if !ok || sess.Peer(a) != b {
		return nil
	}
	return sess
}

func (s *callService) removeLocked(sess *callSession) {
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.Status = domain.CallStatusEnded
	if s.byUser[sess.CallerID] == sess {
		delete(s.byUser, sess.CallerID)
	}
	if s.byUser[sess.ReceiverID] == sess {
		delete(s.byUser, sess.ReceiverID)
	}
}

func (s *callService) emit(msgs ...outbound) {
	for _, m := range msgs {
		peer, ok := s.peers.Lookup(m.to)
		if !ok {
			continue
		}
		if err := peer.Emit(m.event, m.payload); err != nil {
			s.log.Warn("Failed to deliver call event", "to", m.to, "event", m.event, "error", err)
		}
	}
}

func validateDescription(desc webrtc.SessionDescription, want webrtc.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s description, got %s", apperrors.ErrValidation, want, desc.Type)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: session description is empty", apperrors.ErrValidation)
	}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: malformed session description: %v", apperrors.ErrValidation, err)
	}
	return nil
}
