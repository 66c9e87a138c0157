// Package client bundles the SDK components behind one connection value.
package client

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/pkg/communication"
	"github.com/RubachokBoss/speech-sdk/pkg/controllers"
	"github.com/RubachokBoss/speech-sdk/pkg/events"
	"github.com/RubachokBoss/speech-sdk/pkg/logger"
	"github.com/RubachokBoss/speech-sdk/pkg/rpc"
)

type options struct {
	logger     zerolog.Logger
	httpClient *http.Client
	dialer     rpc.Dialer
	bus        *events.Bus
}

type Option func(*options)

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = log }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithDialer replaces the websocket dialer, mostly for tests.
func WithDialer(d rpc.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithBus shares an existing event bus with the connection.
func WithBus(bus *events.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// Client is one connection to the API: a REST client, one websocket
// session and the controllers built on them. The streaming controllers
// share the session registry and the event bus.
type Client struct {
	Communication *communication.Client
	RPC           *rpc.Manager
	Bus           *events.Bus
	Sessions      *controllers.SessionRegistry

	Organisations           controllers.OrganisationController
	Tenants                 controllers.TenantController
	Students                controllers.StudentController
	SpeechChallenges        controllers.SpeechChallengeController
	PronunciationChallenges controllers.PronunciationChallengeController
	ChoiceChallenges        controllers.ChoiceChallengeController
	SpeechRecordings        controllers.SpeechRecordingController
	ChoiceRecognitions      controllers.ChoiceRecognitionController
	PronunciationAnalyses   controllers.PronunciationAnalysisController
}

func New(settings communication.Settings, opts ...Option) *Client {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}

	comm := communication.NewClientWithHTTP(settings, o.httpClient, logger.Component(o.logger, "communication"))
	manager := rpc.NewManagerWithDialer(comm, o.dialer, logger.Component(o.logger, "rpc"))
	sessions := controllers.NewSessionRegistry()
	ctrlLog := logger.Component(o.logger, "controllers")

	return &Client{
		Communication: comm,
		RPC:           manager,
		Bus:           o.bus,
		Sessions:      sessions,

		Organisations:           controllers.NewOrganisationController(comm, ctrlLog),
		Tenants:                 controllers.NewTenantController(comm, ctrlLog),
		Students:                controllers.NewStudentController(comm, ctrlLog),
		SpeechChallenges:        controllers.NewSpeechChallengeController(comm, ctrlLog),
		PronunciationChallenges: controllers.NewPronunciationChallengeController(comm, ctrlLog),
		ChoiceChallenges:        controllers.NewChoiceChallengeController(comm, ctrlLog),
		SpeechRecordings:        controllers.NewSpeechRecordingController(comm, manager, sessions, o.bus, ctrlLog),
		ChoiceRecognitions:      controllers.NewChoiceRecognitionController(comm, manager, sessions, o.bus, ctrlLog),
		PronunciationAnalyses:   controllers.NewPronunciationAnalysisController(comm, manager, sessions, o.bus, ctrlLog),
	}
}

// Authenticate obtains a bearer token and stores it for REST and websocket use.
func (c *Client) Authenticate(ctx context.Context, username, password, scope string) error {
	_, err := c.Communication.Authenticate(ctx, username, password, scope)
	return err
}

func (c *Client) Open(ctx context.Context) (string, error) {
	return c.RPC.Open(ctx)
}

func (c *Client) Close(ctx context.Context) (string, error) {
	return c.RPC.Close(ctx)
}
