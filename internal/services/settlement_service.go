package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/rezawallet/backend/internal/models"
)

const settlementQueueKey = "settlement_queue"

// SettlementService drains completed withdrawals into ISO 20022 pacs.008
// credit-transfer messages for the downstream settlement system.
type SettlementService struct {
	redis    *redis.Client
	currency string
	bic      string
}

type settlementRecord struct {
	UserID string             `json:"userId"`
	Entry  models.LedgerEntry `json:"entry"`
}

func NewSettlementService(redisClient *redis.Client, currency string) *SettlementService {
	return &SettlementService{
		redis:    redisClient,
		currency: currency,
		bic:      "REZAWLT1",
	}
}

// QueueWithdrawal pushes a completed withdrawal onto the settlement queue.
// Best effort: a queueing failure is logged, the ledger is already settled.
func (s *SettlementService) QueueWithdrawal(ctx context.Context, userID string, entry models.LedgerEntry) {
	if s.redis == nil {
		log.Printf("[SETTLEMENT] redis unavailable, skipping queue for entry %s", entry.ID)
		return
	}
	data, err := json.Marshal(settlementRecord{UserID: userID, Entry: entry})
	if err != nil {
		log.Printf("[SETTLEMENT] failed to marshal entry %s: %v", entry.ID, err)
		return
	}
	if err := s.redis.RPush(ctx, settlementQueueKey, data).Err(); err != nil {
		log.Printf("[SETTLEMENT] failed to queue entry %s: %v", entry.ID, err)
	}
}

// ProcessQueue drains the settlement queue, converting each record to a
// pacs.008 message and handing it to the settlement system.
func (s *SettlementService) ProcessQueue(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	for {
		data, err := s.redis.LPop(ctx, settlementQueueKey).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		var record settlementRecord
		if err := json.Unmarshal(data, &record); err != nil {
			log.Printf("[SETTLEMENT] dropping unreadable queue record: %v", err)
			continue
		}

		doc, err := s.CreatePacs008(record.UserID, &record.Entry)
		if err != nil {
			log.Printf("[SETTLEMENT] failed to convert entry %s: %v", record.Entry.ID, err)
			continue
		}
		if err := s.SendToSettlement(doc); err != nil {
			log.Printf("[SETTLEMENT] failed to send entry %s: %v", record.Entry.ID, err)
			continue
		}
		log.Printf("[SETTLEMENT] entry %s exported for settlement", record.Entry.ID)
	}
}

// Run processes the queue on an interval until the context is cancelled.
func (s *SettlementService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ProcessQueue(ctx); err != nil {
				log.Printf("[SETTLEMENT] queue processing failed: %v", err)
			}
		}
	}
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer for one
// completed withdrawal.
func (s *SettlementService) CreatePacs008(userID string, entry *models.LedgerEntry) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if entry.Type != models.EntryTypeWithdrawal || entry.Status != models.EntryStatusCompleted {
		return nil, fmt.Errorf("entry %s is not a completed withdrawal", entry.ID)
	}

	msgID := uuid.New().String()
	creDtTm := time.Now()
	settlementDate := time.Now()
	amount := float64(entry.Amount) / 100

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(s.currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(entry.ID)}[0],
					EndToEndId: common.Max35Text(CorrelationRef(userID, entry.ID)),
					TxId:       &[]common.Max35Text{common.Max35Text(entry.ExternalReference)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(s.currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier(s.bic)}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("ReZA Wallet")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(entry.Description),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(userID)}[0],
				},
			},
		},
	}

	return doc, nil
}

// SendToSettlement hands a message to the settlement system.
func (s *SettlementService) SendToSettlement(doc any) error {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal XML: %w", err)
	}

	// TODO: submit to the acquirer's pacs endpoint once credentials are
	// provisioned; until then the message is logged for manual upload.
	log.Printf("[SETTLEMENT] message ready:\n%s", string(xmlData))
	return nil
}

// ConvertToXML renders an ISO 20022 document as an XML string.
func (s *SettlementService) ConvertToXML(doc any) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
