package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

type AddRecipientsRequest struct {
	Recipients []services.RecipientInput `json:"recipients"`
	Submit     services.SubmitRequest    `json:"submit"`
}

type RecordMilestoneRequest struct {
	Sequence int `json:"sequence"`
}

type InitiateRevokeRequest struct {
	Recipient string                 `json:"recipient"`
	Submit    services.SubmitRequest `json:"submit"`
}

func (s *APIServer) handleCreateDraft(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req services.CreateDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	contract, err := s.svc.Vesting.CreateDraft(c.UserContext(), organizationID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(contract)
}

func (s *APIServer) handleListContracts(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	contracts, err := s.svc.Vesting.List(c.UserContext(), organizationID)
	if err != nil {
		return err
	}
	return c.JSON(contracts)
}

func (s *APIServer) handleGetContract(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	contract, err := s.svc.Vesting.Get(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

// submitHandler adapts the operations that hand a signed transaction to the chain. They
// answer 202 since the transaction is only pending.
func (s *APIServer) submitHandler(submit func(c *fiber.Ctx, organizationID, id string, req services.SubmitRequest) (any, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		organizationID, err := organization(c)
		if err != nil {
			return err
		}

		var req services.SubmitRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		result, err := submit(c, organizationID, c.Params("id"), req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(result)
	}
}

func (s *APIServer) handleSubmitDeployment(c *fiber.Ctx) error {
	return s.submitHandler(func(c *fiber.Ctx, organizationID, id string, req services.SubmitRequest) (any, error) {
		return s.svc.Vesting.SubmitDeployment(c.UserContext(), organizationID, id, req)
	})(c)
}

func (s *APIServer) handleSubmitFunding(c *fiber.Ctx) error {
	return s.submitHandler(func(c *fiber.Ctx, organizationID, id string, req services.SubmitRequest) (any, error) {
		return s.svc.Vesting.SubmitFunding(c.UserContext(), organizationID, id, req)
	})(c)
}

func (s *APIServer) handleActivate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	contract, err := s.svc.Vesting.Activate(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

func (s *APIServer) handleDeactivate(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	contract, err := s.svc.Vesting.Deactivate(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

func (s *APIServer) handleListRecipients(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	recipients, err := s.svc.Vesting.ListRecipients(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(recipients)
}

func (s *APIServer) handleAddRecipients(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req AddRecipientsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	tx, err := s.svc.Vesting.AddRecipients(c.UserContext(), organizationID, c.Params("id"), req.Recipients, req.Submit)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(tx)
}

func (s *APIServer) handleRecordMilestone(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req RecordMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	contract, err := s.svc.Vesting.RecordMilestone(c.UserContext(), organizationID, c.Params("id"), req.Sequence)
	if err != nil {
		return err
	}
	return c.JSON(contract)
}

// handleVestedAmount answers for ?recipient= (whole contract when omitted) at ?at= (RFC 3339,
// now when omitted).
func (s *APIServer) handleVestedAmount(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	at := s.now()
	if raw := c.Query("at"); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, "at must be an RFC 3339 timestamp")
		}
	}

	amount, err := s.svc.Vesting.VestedAmount(c.UserContext(), organizationID, c.Params("id"), c.Query("recipient"), at)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"vesting_id": c.Params("id"),
		"recipient":  c.Query("recipient"),
		"at":         at.UTC(),
		"vested":     amount.Vested.String(),
		"unvested":   amount.Unvested.String(),
	})
}

func (s *APIServer) handleListRevocations(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	revocations, err := s.svc.Revocations.ListByVesting(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(revocations)
}

func (s *APIServer) handleInitiateRevoke(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req InitiateRevokeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	revoking, err := s.svc.Revocations.InitiateRevoke(c.UserContext(), organizationID, services.RevokeRequest{
		VestingID: c.Params("id"),
		Recipient: req.Recipient,
		Submit:    req.Submit,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(revoking)
}

func (s *APIServer) handleGetRevocation(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	revoking, err := s.svc.Revocations.Get(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(revoking)
}
