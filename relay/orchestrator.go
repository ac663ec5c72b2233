package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"parley/db"
	"parley/etc"
	"parley/summary"
	"parley/upstream"
)

// EndReason says why an interview ended. Recorded once; later triggers lose
// the race and are ignored.
type EndReason string

const (
	EndUserStop       EndReason = "user_stop"
	EndInactivity     EndReason = "inactivity"
	EndClientGone     EndReason = "client_gone"
	EndUpstreamClosed EndReason = "upstream_closed"
	EndClosingRemarks EndReason = "closing_remarks"
)

// terminateTimeout bounds the persistence and summary work after the live
// session is torn down.
const terminateTimeout = 30 * time.Second

// Orchestrator runs one interview end to end: it relays audio both ways,
// records the transcript, and on any end trigger performs termination
// exactly once, finishing with a single interview_ended message.
type Orchestrator struct {
	Client     ClientConn
	Store      db.Store
	Dialer     upstream.Dialer
	Summarizer summary.Summarizer
	Config     Config
	Logger     *log.Logger

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time

	endOnce sync.Once
	endMu   sync.Mutex
	reason  EndReason
	cancel  context.CancelFunc
}

// end records the first termination trigger and cancels the session
// context. Subsequent calls are no-ops.
func (o *Orchestrator) end(reason EndReason) {
	o.endOnce.Do(func() {
		o.endMu.Lock()
		o.reason = reason
		o.endMu.Unlock()
		o.Logger.Info("ending interview", "reason", reason)
		o.cancel()
	})
}

func (o *Orchestrator) endReason() EndReason {
	o.endMu.Lock()
	defer o.endMu.Unlock()
	return o.reason
}

// Run drives the whole interview. It returns once the terminal
// interview_ended message has been sent (or the client is unreachable).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Config = o.Config.WithDefaults()

	interview, err := o.Store.CreateInterview(ctx)
	if err != nil {
		return fmt.Errorf("create interview: %w", err)
	}
	logger := o.Logger.With("interview", interview.ID)
	logger.Info("interview started")

	err = o.Client.Send(InterviewStarted{Type: TypeInterviewStarted, InterviewID: interview.ID})
	if err != nil {
		return fmt.Errorf("send interview_started: %w", err)
	}

	clk := newClock(o.Now)
	stream := newStreamer(o.Client, o.Config, logger)
	record := newRecorder(interview.ID, o.Store, o.Client, logger)

	session, err := o.Dialer.Dial(ctx)
	if err != nil {
		logger.Error("upstream dial failed", "err", err)
		o.failImmediately(interview.ID, clk, record, "could not reach the speech service")
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	defer cancel()

	batch := newBatcher(session, o.Config, logger, o.Now)
	watch := newMonitor(clk, o.Config, logger, func() { o.end(EndInactivity) })

	if o.Config.Greeting != "" {
		if err := session.SendText(sessionCtx, o.Config.Greeting); err != nil {
			logger.Error("failed to send greeting", "err", err)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.readClient(sessionCtx, clk, batch, record, session, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.receiveUpstream(sessionCtx, session, clk, stream, record, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		batch.Run(sessionCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		stream.Run(sessionCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		watch.Run(sessionCtx)
	}()

	// Unblock the two reader goroutines once anything triggers the end:
	// closing the session fails its Receive, and canceling the client read
	// fails the websocket read.
	go func() {
		<-sessionCtx.Done()
		session.Close()
		o.Client.CancelRead()
	}()

	wg.Wait()

	o.terminate(interview.ID, clk, stream, record, logger)
	return nil
}

// readClient pumps browser messages until the connection drops or the
// session ends. Unknown or malformed messages are dropped without ending
// the interview.
func (o *Orchestrator) readClient(
	ctx context.Context,
	clk *clock,
	batch *batcher,
	record *recorder,
	session upstream.Session,
	logger *log.Logger,
) {
	for {
		data, err := o.Client.Receive()
		if err != nil {
			if ctx.Err() == nil {
				o.end(EndClientGone)
			}
			return
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			logger.Debug("dropping malformed client message", "err", err)
			continue
		}

		switch msg.Type {
		case TypeAudioChunk:
			clk.Touch()
			batch.Push(msg.Audio)
		case TypeTextInput:
			if msg.Text == "" {
				continue
			}
			clk.Touch()
			record.Record(ctx, db.SpeakerUser, msg.Text)
			if err := session.SendText(ctx, msg.Text); err != nil {
				logger.Error("failed to forward text input", "err", err)
			}
		case TypeStopInterview:
			o.end(EndUserStop)
			return
		default:
			logger.Debug("dropping unknown client message", "type", msg.Type)
		}
	}
}

// receiveUpstream pumps model events until the session closes.
func (o *Orchestrator) receiveUpstream(
	ctx context.Context,
	session upstream.Session,
	clk *clock,
	stream *streamer,
	record *recorder,
	logger *log.Logger,
) {
	for {
		event, err := session.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Info("upstream session closed", "err", err)
				o.end(EndUpstreamClosed)
			}
			return
		}

		switch e := event.(type) {
		case upstream.UserSpeech:
			clk.Touch()
			record.Record(ctx, db.SpeakerUser, e.Text)
		case upstream.AIText:
			clk.Touch()
			record.Record(ctx, db.SpeakerAI, e.Text)
			if o.Config.EndOnClosingRemarks && soundsLikeClosing(e.Text) {
				o.end(EndClosingRemarks)
				return
			}
		case upstream.AIAudio:
			clk.Touch()
			stream.Enqueue(e.Data, e.MIMEType)
		case upstream.TurnComplete:
			stream.EnqueueBoundary(ctx)
		case upstream.Interrupted:
			// The user barged in; whatever audio is still queued belongs to
			// the abandoned turn.
			stream.DiscardPending()
			stream.EnqueueBoundary(ctx)
		}
	}
}

// terminate runs the post-session work under its own deadline: close any
// open audio stream, summarize, persist the final record, and send the one
// terminal message. Individual failures downgrade the interview to failed
// but never prevent the terminal message.
func (o *Orchestrator) terminate(
	interviewID string,
	clk *clock,
	stream *streamer,
	record *recorder,
	logger *log.Logger,
) {
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()

	stream.CloseOpenStream()

	status := db.StatusCompleted
	var failure string

	utterances, err := o.Store.ListUtterances(ctx, interviewID)
	if err != nil {
		logger.Error("failed to load transcript", "err", err)
		status = db.StatusFailed
		failure = "transcript could not be loaded"
	}

	summaryText := summary.Fallback
	if failure == "" {
		summaryText, err = o.Summarizer.Summarize(ctx, utterances)
		if err != nil {
			logger.Error("failed to generate summary", "err", err)
			summaryText = summary.Fallback
		}
	}

	duration := clk.ElapsedSeconds()
	err = o.Store.FinishInterview(ctx, db.FinishInterviewParams{
		ID:              interviewID,
		Status:          status,
		EndedAt:         clk.now(),
		DurationSeconds: duration,
		FullTranscript:  summary.Transcript(utterances),
		Summary:         summaryText,
	})
	if err != nil {
		logger.Error("failed to finish interview", "err", err)
		status = db.StatusFailed
		failure = "interview record could not be saved"
	}

	ended := InterviewEnded{
		Type:             TypeInterviewEnded,
		InterviewID:      interviewID,
		Duration:         etc.FormatDuration(duration),
		Summary:          summaryText,
		TotalTranscripts: record.Count(),
		Error:            failure,
	}
	if err := o.Client.Send(ended); err != nil {
		logger.Debug("failed to send interview_ended", "err", err)
	}
	o.Client.Close()

	logger.Info("interview finished",
		"reason", o.endReason(),
		"status", status,
		"duration", ended.Duration,
		"transcripts", ended.TotalTranscripts,
	)
}

// failImmediately handles startup failures that happen before the session
// loops exist. The client still gets a terminal message.
func (o *Orchestrator) failImmediately(
	interviewID string,
	clk *clock,
	record *recorder,
	failure string,
) {
	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()

	err := o.Store.FinishInterview(ctx, db.FinishInterviewParams{
		ID:              interviewID,
		Status:          db.StatusFailed,
		EndedAt:         clk.now(),
		DurationSeconds: clk.ElapsedSeconds(),
		Summary:         summary.Fallback,
	})
	if err != nil {
		o.Logger.Error("failed to mark interview failed", "err", err)
	}

	ended := InterviewEnded{
		Type:             TypeInterviewEnded,
		InterviewID:      interviewID,
		Duration:         etc.FormatDuration(clk.ElapsedSeconds()),
		Summary:          summary.Fallback,
		TotalTranscripts: record.Count(),
		Error:            failure,
	}
	if err := o.Client.Send(ended); err != nil {
		o.Logger.Debug("failed to send interview_ended", "err", err)
	}
	o.Client.Close()
}
