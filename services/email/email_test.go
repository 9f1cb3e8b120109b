package emailsvc

import (
	"encoding/json"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hostelmess/core"
	logsvc "github.com/trezcool/hostelmess/services/logger"
)

func billMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "Awe", Address: "awe@test.cd"}},
		Subject:      "Your mess bill for 04/2024",
		TemplateName: "bill_generated",
		TemplateData: map[string]interface{}{
			"MessName":    "Block C Mess",
			"StudentName": "Awe",
			"Period":      "04/2024",
			"Lines": []map[string]interface{}{
				{"Meal": "Lunch", "Count": 2, "Rate": "50.00", "Total": "100.00"},
			},
			"TotalAmount": "100.00",
		},
		Category: "bill_generated",
		Meta:     map[string]string{"bill_id": "b1"},
	}
}

func TestEmailMessage_Render(t *testing.T) {
	msg := billMessage()
	require.NoError(t, msg.Render())
	assert.Contains(t, msg.TextContent, "Lunch: 2 x 50.00 = 100.00")
	assert.Contains(t, msg.TextContent, "Total due: 100.00")
	assert.Contains(t, msg.HTMLContent, "<strong>04/2024</strong>")

	plain := &core.EmailMessage{To: msg.To, BodyStr: "hello"}
	require.NoError(t, plain.Render())
	assert.Equal(t, "hello", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)

	unknown := &core.EmailMessage{To: msg.To, TemplateName: "lol"}
	assert.Error(t, unknown.Render())
}

func TestConsoleService_format(t *testing.T) {
	conf := core.NewTestConfig()
	out := new(strings.Builder)
	svc := consoleService{
		defaultFromEmail: conf.Email.DefaultFrom,
		subjPrefix:       "[Mess] ",
		out:              out,
		logger:           logsvc.NewNopLogger(),
	}

	require.True(t, svc.sendMessage(billMessage()))
	assert.Contains(t, out.String(), "Subject: [Mess] Your mess bill for 04/2024\r\n")
	assert.Contains(t, out.String(), "X-Category: bill_generated\r\n")
	assert.Contains(t, out.String(), "X-Meta-bill_id: b1\r\n")

	assert.False(t, svc.sendMessage(&core.EmailMessage{BodyStr: "no recipient"}))
}

func TestSendgridService_deliver(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Email.SendgridAPIKey = "sg-key"

	var (
		mu   sync.Mutex
		reqs []sendgridRequest
	)
	svc := NewSendgridService(conf, logsvc.NewNopLogger()).(*sendgridService)
	svc.api = func(r sendgridRequest) (int, string, error) {
		mu.Lock()
		defer mu.Unlock()
		reqs = append(reqs, r)
		return 202, "", nil
	}

	svc.deliver(billMessage())
	svc.deliver(&core.EmailMessage{BodyStr: "no recipient"})
	require.Len(t, reqs, 1)
	assert.Equal(t, "sg-key", reqs[0].key)

	var payload struct {
		Subject          string   `json:"subject"`
		Categories       []string `json:"categories"`
		Personalizations []struct {
			Subject    string              `json:"subject"`
			To         []map[string]string `json:"to"`
			CustomArgs map[string]string   `json:"custom_args"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(reqs[0].body, &payload))
	assert.Equal(t, []string{"bill_generated"}, payload.Categories)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "["+conf.AppName+"] Your mess bill for 04/2024", payload.Personalizations[0].Subject)
	assert.Equal(t, "awe@test.cd", payload.Personalizations[0].To[0]["email"])
	assert.Equal(t, map[string]string{"bill_id": "b1"}, payload.Personalizations[0].CustomArgs)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	assert.Equal(t, "text/html", payload.Content[1].Type)
}
