package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/internal/access"
	"gatepass/internal/intake"
	ledgerService "gatepass/internal/ledger/service"
	ledgerStore "gatepass/internal/ledger/store"
	"gatepass/internal/notify"
	"gatepass/internal/platform/middleware"
	residentService "gatepass/internal/resident/service"
	residentStore "gatepass/internal/resident/store"
	sessionStore "gatepass/internal/session/store"
	id "gatepass/pkg/domain"
	"gatepass/pkg/testutil"
)

func TestGuestPassOverHTTP(t *testing.T) {
	const token = "relay-token"
	sender := notify.NewMemorySender()
	requests := ledgerStore.NewInMemory()
	dispatcher := notify.NewDispatcher(sender, -1)
	machine := intake.NewMachine(
		residentService.New(residentStore.NewInMemory()),
		ledgerService.New(requests),
		dispatcher,
	)
	engine := intake.NewEngine(machine, sessionStore.NewInMemory(), access.AllowAll{}, dispatcher)
	logger := slog.New(slog.DiscardHandler)
	router := NewRouter(NewHandler(engine, logger), middleware.RequireToken(token, logger))

	send := func(t *testing.T, auth, kind, payload string) int {
		t.Helper()
		body := fmt.Sprintf(`{"requester_id":77,"handle":"olena","kind":%q,"payload":%q}`, kind, payload)
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	testutil.Scenario(t, "a new resident books a guest visit through the relay", func(t *testing.T) {
		testutil.Given(t, "an event without the relay token", func(t *testing.T) {
			testutil.Then(t, "it is refused before reaching the engine", func(t *testing.T) {
				assert.Equal(t, http.StatusUnauthorized, send(t, "", "text", "/start"))
				assert.Equal(t, http.StatusUnauthorized, send(t, "wrong", "text", "/start"))
				assert.Empty(t, sender.Sent(id.ChatID(77)))
			})
		})

		testutil.When(t, "the resident registers and walks the guest flow", func(t *testing.T) {
			steps := []struct{ kind, payload string }{
				{"text", "/start"},
				{"contact", "0671112233"},
				{"text", "Olena Koval"},
				{"text", "12b"},
				{"button", intake.ActionGuest},
				{"text", "Taras"},
				{"button", intake.ActionToday},
				{"button", intake.ActionFirstHalf},
				{"button", "dur:3"},
			}
			for _, st := range steps {
				require.Equal(t, http.StatusAccepted, send(t, token, st.kind, st.payload), st.payload)
			}

			testutil.Then(t, "one request is logged and security is alerted", func(t *testing.T) {
				all := requests.All()
				require.Len(t, all, 1)
				assert.Equal(t, id.PassGuest, all[0].PassType)
				assert.Equal(t, "Taras", all[0].GuestName)
				assert.Equal(t, "12B", all[0].Requester.Flat)
				assert.Equal(t, id.StayTwoToFour, all[0].Duration)

				alerts := sender.Sent(id.ChatID(-1))
				require.Len(t, alerts, 1)
				assert.Contains(t, alerts[0].Text, "Request #1\n")
			})
		})
	})
}
