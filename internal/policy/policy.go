// Package policy はロールと所有関係に基づく認可判定を一元的に提供する。
// 全ての更新系操作は実行前にAuthorizeを呼び出す。
package policy

import (
	"github.com/hitoshi/placement/internal/model"
)

// Action は認可対象の操作を表す。
type Action string

const (
	ActionOfferCreate           Action = "offer:create"
	ActionOfferUpdate           Action = "offer:update"
	ActionOfferDelete           Action = "offer:delete"
	ActionApplicationCreate     Action = "application:create"
	ActionApplicationRead       Action = "application:read"
	ActionApplicationTransition Action = "application:transition"
	ActionApplicationRemove     Action = "application:remove"
	ActionEvaluationWrite       Action = "evaluation:write"
	ActionEvaluationRead        Action = "evaluation:read"
	ActionEvaluationRemove      Action = "evaluation:remove"
	ActionProfileUpdate         Action = "profile:update"
	ActionSupervisorCreate      Action = "supervisor:create"
	ActionStatsRead             Action = "stats:read"
	ActionSettingWrite          Action = "setting:write"
	ActionAccountProvision      Action = "account:provision"
	ActionAccountWithdraw       Action = "account:withdraw"
)

// Resource は認可判定に使う対象リソースと操作主体の解決済み属性。
// 判定に不要な項目は空のままでよい。
type Resource struct {
	// OwnerCompanyID はリソースを所有する企業（募集の企業）
	OwnerCompanyID string
	// ActorCompanyID は操作主体の所属企業（企業ユーザーまたは指導担当者）
	ActorCompanyID string
	// OwnerStudentID はリソースに紐づく学生
	OwnerStudentID string
	// ActorStudentID は操作主体の学生ID
	ActorStudentID string
	// OwnerUserID はプロフィールの所有ユーザー
	OwnerUserID string
	// Status は応募の現在ステータス
	Status model.ApplicationStatus
}

// Authorize は操作主体がリソースに対してactionを実行できるかを判定する。
// 許可されない場合はForbidden種別の*model.APIErrorを返す。
func Authorize(actor model.Principal, action Action, res Resource) error {
	if allowed(actor, action, res) {
		return nil
	}
	switch action {
	case ActionApplicationTransition, ActionEvaluationWrite:
		// ロールは正しいが企業が異なる場合は他社アクセスとして扱う
		if actor.Is(model.RoleSupervisor) {
			return model.NewCrossCompanyError()
		}
	case ActionEvaluationRead, ActionEvaluationRemove:
		if actor.Is(model.RoleSupervisor, model.RoleCompany) {
			return model.NewCrossCompanyError()
		}
	}
	return model.NewForbiddenError(string(action))
}

func allowed(actor model.Principal, action Action, res Resource) bool {
	sameCompany := res.ActorCompanyID != "" && res.ActorCompanyID == res.OwnerCompanyID

	switch action {
	case ActionOfferCreate:
		return actor.Is(model.RoleCompany)
	case ActionOfferUpdate:
		return actor.Is(model.RoleCompany) && sameCompany
	case ActionOfferDelete:
		return actor.Is(model.RoleSchoolAdmin) || (actor.Is(model.RoleCompany) && sameCompany)

	case ActionApplicationCreate:
		return actor.Is(model.RoleStudent)
	case ActionApplicationRead:
		switch actor.Role {
		case model.RoleSchoolAdmin:
			return true
		case model.RoleStudent:
			return res.ActorStudentID != "" && res.ActorStudentID == res.OwnerStudentID
		case model.RoleCompany, model.RoleSupervisor:
			return sameCompany
		}
		return false
	case ActionApplicationTransition:
		return actor.Is(model.RoleSupervisor) && sameCompany
	case ActionApplicationRemove:
		if actor.Is(model.RoleSchoolAdmin) {
			return true
		}
		return actor.Is(model.RoleStudent) &&
			res.ActorStudentID != "" && res.ActorStudentID == res.OwnerStudentID &&
			res.Status == model.ApplicationStatusPending

	case ActionEvaluationWrite:
		return actor.Is(model.RoleSupervisor) && sameCompany
	case ActionEvaluationRead:
		switch actor.Role {
		case model.RoleSchoolAdmin:
			return true
		case model.RoleStudent:
			return res.ActorStudentID != "" && res.ActorStudentID == res.OwnerStudentID
		case model.RoleCompany, model.RoleSupervisor:
			return sameCompany
		}
		return false
	case ActionEvaluationRemove:
		return actor.Is(model.RoleSchoolAdmin) || (actor.Is(model.RoleSupervisor) && sameCompany)

	case ActionProfileUpdate:
		return actor.Is(model.RoleSchoolAdmin) || (res.OwnerUserID != "" && res.OwnerUserID == actor.UserID)
	case ActionSupervisorCreate:
		return actor.Is(model.RoleSchoolAdmin) || (actor.Is(model.RoleCompany) && res.ActorCompanyID != "")
	case ActionAccountWithdraw:
		return actor.Is(model.RoleSchoolAdmin) || (res.OwnerUserID != "" && res.OwnerUserID == actor.UserID)
	case ActionStatsRead, ActionSettingWrite, ActionAccountProvision:
		return actor.Is(model.RoleSchoolAdmin)
	}
	return false
}
