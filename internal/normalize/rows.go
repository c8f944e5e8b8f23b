package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// SourceRow is one row handed over by a format-specific extractor. The set of
// implementations is closed: DelimitedRow, EntityRow, ReportLine and
// GenericRecord.
type SourceRow interface {
	// Position is the row's ordinal within its source, used for audit and
	// for deriving stable ids.
	Position() int
	sourceRow()
}

// DelimitedRow is a header-keyed record from delimited text.
type DelimitedRow struct {
	Line   int
	Fields map[string]string
}

// EntityRow is a spreadsheet-derived entity record with typed columns.
type EntityRow struct {
	Row                  int    `json:"row"`
	ID                   string `json:"id,omitempty"`
	Date                 string `json:"date"`
	Amount               string `json:"amount"`
	Direction            string `json:"direction,omitempty"`
	Channel              string `json:"channel,omitempty"`
	HolderDocument       string `json:"holderDocument,omitempty"`
	CounterpartyDocument string `json:"counterpartyDocument,omitempty"`
	CounterpartyName     string `json:"counterpartyName,omitempty"`
	Bank                 string `json:"bank,omitempty"`
	Agency               string `json:"agency,omitempty"`
	Account              string `json:"account,omitempty"`
	Description          string `json:"description,omitempty"`
}

// ReportLine is one line of loosely structured report text.
type ReportLine struct {
	Line int
	Text string
}

// GenericRecord is an arbitrary key/value record, typically decoded JSON.
type GenericRecord struct {
	Index  int
	Values map[string]interface{}
}

func (r DelimitedRow) Position() int  { return r.Line }
func (r EntityRow) Position() int     { return r.Row }
func (r ReportLine) Position() int    { return r.Line }
func (r GenericRecord) Position() int { return r.Index }

func (DelimitedRow) sourceRow()  {}
func (EntityRow) sourceRow()     {}
func (ReportLine) sourceRow()    {}
func (GenericRecord) sourceRow() {}

// rawFields is the shape-independent, still untyped view of a row.
type rawFields struct {
	ID                   string
	Date                 string
	Amount               string
	Type                 string
	Method               string
	HolderDocument       string
	CounterpartyDocument string
	Counterparty         string
	Bank                 string
	Agency               string
	Account              string
	Description          string
}

// Canonical field keys used by the alias table.
const (
	keyID                   = "id"
	keyDate                 = "date"
	keyAmount               = "amount"
	keyType                 = "type"
	keyMethod               = "method"
	keyHolderDocument       = "holder_document"
	keyCounterpartyDocument = "counterparty_document"
	keyCounterparty         = "counterparty"
	keyBank                 = "bank"
	keyAgency               = "agency"
	keyAccount              = "account"
	keyDescription          = "description"
)

// columnAliases maps folded header names onto canonical keys.
var columnAliases = map[string]string{
	"id": keyID, "identificador": keyID, "transaction_id": keyID, "trx_id": keyID,
	"trxid": keyID, "codigo": keyID, "id_transacao": keyID,

	"date": keyDate, "data": keyDate, "data_lancamento": keyDate, "data_transacao": keyDate,
	"dt": keyDate, "datetime": keyDate, "timestamp": keyDate, "data_hora": keyDate,
	"data_movimento": keyDate, "transaction_date": keyDate,

	"amount": keyAmount, "valor": keyAmount, "value": keyAmount, "valor_transacao": keyAmount,
	"quantia": keyAmount, "montante": keyAmount, "vlr": keyAmount, "valor_r": keyAmount,

	"type": keyType, "tipo": keyType, "natureza": keyType, "debito_credito": keyType,
	"d_c": keyType, "cd": keyType, "dc": keyType, "direction": keyType, "sentido": keyType,

	"method": keyMethod, "forma": keyMethod, "meio": keyMethod, "modalidade": keyMethod,
	"canal": keyMethod, "channel": keyMethod, "forma_pagamento": keyMethod,
	"tipo_transacao": keyMethod, "operacao": keyMethod, "payment_method": keyMethod,

	"holder_document": keyHolderDocument, "documento_titular": keyHolderDocument,
	"cpf_cnpj_titular": keyHolderDocument, "cpf_titular": keyHolderDocument,
	"cnpj_titular": keyHolderDocument, "titular_documento": keyHolderDocument,
	"cpf_cnpj": keyHolderDocument, "holderdocument": keyHolderDocument,

	"counterparty_document": keyCounterpartyDocument, "documento_contraparte": keyCounterpartyDocument,
	"cpf_cnpj_contraparte": keyCounterpartyDocument, "doc_contraparte": keyCounterpartyDocument,
	"cpf_cnpj_favorecido": keyCounterpartyDocument, "documento_favorecido": keyCounterpartyDocument,
	"counterpartydocument": keyCounterpartyDocument,

	"counterparty": keyCounterparty, "contraparte": keyCounterparty, "nome": keyCounterparty,
	"favorecido": keyCounterparty, "nome_contraparte": keyCounterparty,
	"beneficiario": keyCounterparty, "remetente": keyCounterparty, "counterparty_name": keyCounterparty,

	"bank": keyBank, "banco": keyBank,
	"agency": keyAgency, "agencia": keyAgency,
	"account": keyAccount, "conta": keyAccount,

	"description": keyDescription, "descricao": keyDescription, "historico": keyDescription,
	"memo": keyDescription, "detalhe": keyDescription, "observacao": keyDescription,
}

var headerSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalColumn returns the canonical key for a header, or "" when the
// header is not recognized.
func CanonicalColumn(header string) string {
	h := headerSeparators.ReplaceAllString(foldText(header), "_")
	h = strings.Trim(h, "_")
	return columnAliases[h]
}

// fieldsFromMap resolves aliased keys. Keys are visited in sorted order so
// the first alias to win is deterministic when a source repeats a field.
func fieldsFromMap(values map[string]string) rawFields {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]string)
	for _, k := range keys {
		canonical := CanonicalColumn(k)
		if canonical == "" {
			continue
		}
		v := strings.TrimSpace(values[k])
		if v == "" {
			continue
		}
		if _, seen := resolved[canonical]; !seen {
			resolved[canonical] = v
		}
	}

	return rawFields{
		ID:                   resolved[keyID],
		Date:                 resolved[keyDate],
		Amount:               resolved[keyAmount],
		Type:                 resolved[keyType],
		Method:               resolved[keyMethod],
		HolderDocument:       resolved[keyHolderDocument],
		CounterpartyDocument: resolved[keyCounterpartyDocument],
		Counterparty:         resolved[keyCounterparty],
		Bank:                 resolved[keyBank],
		Agency:               resolved[keyAgency],
		Account:              resolved[keyAccount],
		Description:          resolved[keyDescription],
	}
}

var (
	reportDate = regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4}|\d{4}-\d{2}-\d{2}|\d{2}-\d{2}-\d{4})(\s+\d{2}:\d{2}(:\d{2})?)?`)
	reportDoc  = regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b|\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`)
	reportCash = regexp.MustCompile(`(\(?-?\s*(R\$\s*)?-?\d{1,3}(\.\d{3})*,\d{2}\)?)|(\(?-?\s*(R\$\s*)?-?\d+[.,]\d{2}\)?)`)
	reportSide = regexp.MustCompile(`\s([CD])\s*$`)
)

// fieldsFromReportLine pulls a date, an amount, a counterparty document and a
// direction marker out of free text. The whole line is kept as description.
func fieldsFromReportLine(text string) rawFields {
	f := rawFields{Description: strings.TrimSpace(text)}
	rest := text

	if m := reportDate.FindString(rest); m != "" {
		f.Date = strings.TrimSpace(m)
		rest = strings.Replace(rest, m, " ", 1)
	}
	if m := reportDoc.FindString(rest); m != "" {
		f.CounterpartyDocument = m
		rest = strings.Replace(rest, m, " ", 1)
	}
	if m := reportSide.FindStringSubmatch(rest); m != nil {
		f.Type = m[1]
		rest = rest[:len(rest)-len(m[0])]
	}
	if all := reportCash.FindAllString(rest, -1); len(all) > 0 {
		// The last money-looking token is the transaction value; earlier ones
		// are usually balances or references.
		f.Amount = strings.TrimSpace(all[len(all)-1])
	}
	return f
}

// fieldsFromGeneric stringifies loosely typed values before alias resolution.
func fieldsFromGeneric(values map[string]interface{}) (rawFields, error) {
	str := make(map[string]string, len(values))
	for k, v := range values {
		if v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			return rawFields{}, fmt.Errorf("field %q: %w", k, err)
		}
		str[k] = s
	}
	return fieldsFromMap(str), nil
}

// extract converts any supported row shape into raw fields.
func extract(row SourceRow) (rawFields, error) {
	switch r := row.(type) {
	case DelimitedRow:
		return fieldsFromMap(r.Fields), nil
	case *DelimitedRow:
		return fieldsFromMap(r.Fields), nil
	case EntityRow:
		return fieldsFromEntity(r), nil
	case *EntityRow:
		return fieldsFromEntity(*r), nil
	case ReportLine:
		return fieldsFromReportLine(r.Text), nil
	case *ReportLine:
		return fieldsFromReportLine(r.Text), nil
	case GenericRecord:
		return fieldsFromGeneric(r.Values)
	case *GenericRecord:
		return fieldsFromGeneric(r.Values)
	case nil:
		return rawFields{}, fmt.Errorf("nil row")
	default:
		return rawFields{}, fmt.Errorf("unsupported row shape %T", row)
	}
}

func fieldsFromEntity(r EntityRow) rawFields {
	return rawFields{
		ID:                   strings.TrimSpace(r.ID),
		Date:                 strings.TrimSpace(r.Date),
		Amount:               strings.TrimSpace(r.Amount),
		Type:                 strings.TrimSpace(r.Direction),
		Method:               strings.TrimSpace(r.Channel),
		HolderDocument:       r.HolderDocument,
		CounterpartyDocument: r.CounterpartyDocument,
		Counterparty:         strings.TrimSpace(r.CounterpartyName),
		Bank:                 strings.TrimSpace(r.Bank),
		Agency:               strings.TrimSpace(r.Agency),
		Account:              strings.TrimSpace(r.Account),
		Description:          strings.TrimSpace(r.Description),
	}
}
