package session

// WorkItem is one unit of TTS work: either a text segment to speak, or the
// end-of-response sentinel. A sentinel may carry a Done channel, closed by the
// worker when the response has fully drained; the welcome bootstrap uses it to
// hold the microphone gate shut until the greeting finished playing.
type WorkItem struct {
	Text          string
	EndOfResponse bool
	Done          chan struct{}
}

// worker is the single consumer of the TTS work queue. Strict FIFO processing
// is what keeps audio from two responses from ever interleaving: one
// response's segments fully drain (or are interrupted) before the next
// response's audio begins.
func (s *Session) worker() {
	sentAudio := false

	for {
		select {
		case <-s.ctx.Done():
			return

		case item := <-s.queue:
			if item.EndOfResponse {
				if s.interrupted.Load() {
					s.interrupted.Store(false)
				} else if sentAudio {
					s.sendEvent(audioEnd())
				}
				// Even a response whose every segment failed returns to
				// listening, or the silence watchdog stays suspended.
				if s.machine.Transition(StateListening) {
					s.sendEvent(agentState(StateListening))
					s.silence.Reset()
				}
				sentAudio = false
				if item.Done != nil {
					close(item.Done)
				}
				continue
			}

			if s.interrupted.Load() {
				continue
			}
			if !s.sleep(s.cfg.PreSegmentDelay) {
				return
			}
			if s.interrupted.Load() {
				continue
			}
			if s.speakSegment(item.Text) {
				sentAudio = true
			}
		}
	}
}

// speakSegment synthesizes one segment and relays its audio to the client in
// bounded frames, checking the interrupted flag between frames so a barge-in
// halts playback within one frame's latency. Synthesis failures skip the
// segment; the session continues.
func (s *Session) speakSegment(text string) bool {
	s.metrics.RecordTTSStart()
	frames, err := s.synth.Synthesize(s.ctx, text, s.snapshot.Voice)
	if err != nil {
		s.metrics.RecordTTSEnd(false)
		s.metrics.RecordError("tts_segment_failed", "tts")
		s.logger.Warn().Err(err).Str("segment", preview(text)).Msg("Skipping segment after TTS failure")
		return false
	}
	s.metrics.RecordTTSEnd(true)

	s.sendEvent(audioChunkStart(preview(text)))

	sent := false
	for frame := range frames {
		if s.interrupted.Load() || s.ctx.Err() != nil {
			for range frames {
			}
			break
		}
		if err := s.client.SendAudio(frame); err != nil {
			s.metrics.RecordError("client_send_failed", "gateway")
			s.logger.Warn().Err(err).Msg("Client audio send failed")
			for range frames {
			}
			s.finish("client connection lost")
			return sent
		}
		sent = true
		s.metrics.RecordAudioBytes("out", int64(len(frame)))
		if !s.sleep(s.cfg.InterFrameDelay) {
			break
		}
	}

	s.sendEvent(audioChunkEnd(preview(text)))

	if !s.interrupted.Load() {
		s.sleep(s.cfg.PostSegmentDelay)
	}
	return sent
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= 40 {
		return text
	}
	return string(runes[:40])
}
